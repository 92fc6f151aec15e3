package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultMintEvent is emitted by the RWA NFT contract once mintWithLock succeeds.
const DefaultMintEvent = "NFTMinted"

// tokenIDArg is the event argument carrying the minted token id.
const tokenIDArg = "tokenId"

const nftABIJSON = `[
	{"type":"function","name":"mintWithLock","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"metadataURI","type":"string"},{"name":"custodian","type":"address"}],
	 "outputs":[{"name":"tokenId","type":"uint256"}]},
	{"type":"event","name":"NFTMinted","anonymous":false,
	 "inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"metadataURI","type":"string","indexed":false}]}
]`

const stakingABIJSON = `[
	{"type":"function","name":"stake","stateMutability":"nonpayable",
	 "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// NFTABI returns the embedded RWA NFT contract ABI.
func NFTABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(nftABIJSON))
}

// LoadABI reads a contract ABI from a JSON file, falling back to the embedded
// NFT ABI when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return NFTABI()
	}
	f, err := os.Open(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("open abi: %w", err)
	}
	defer f.Close()
	parsed, err := abi.JSON(f)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return parsed, nil
}

func stakingABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(stakingABIJSON))
}

func erc20ABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(erc20ABIJSON))
}
