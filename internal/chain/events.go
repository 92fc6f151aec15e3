package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
)

// decodeMintEvent finds the mint event emitted by the NFT contract in receipt
// and returns its token id. The id may be carried in a topic or in data.
func (c *Client) decodeMintEvent(receipt *types.Receipt) (uint64, error) {
	ev := c.nftABI.Events[c.mintEvent]
	fail := func(reason string) (uint64, error) {
		return 0, &EventDecodeError{TxHash: receipt.TxHash, Event: c.mintEvent, Reason: reason}
	}
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != c.nftAddr || len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
			continue
		}
		values := make(map[string]interface{})
		if len(ev.Inputs.NonIndexed()) > 0 {
			if err := ev.Inputs.UnpackIntoMap(values, lg.Data); err != nil {
				return fail("unpack data: " + err.Error())
			}
		}
		var indexed abi.Arguments
		for _, arg := range ev.Inputs {
			if arg.Indexed {
				indexed = append(indexed, arg)
			}
		}
		if err := abi.ParseTopicsIntoMap(values, indexed, lg.Topics[1:]); err != nil {
			return fail("parse topics: " + err.Error())
		}
		raw, ok := values[tokenIDArg]
		if !ok {
			return fail("event has no tokenId argument")
		}
		id, ok := raw.(*big.Int)
		if !ok {
			return fail("tokenId is not an integer")
		}
		if !id.IsUint64() {
			return fail("tokenId out of range: " + id.String())
		}
		return id.Uint64(), nil
	}
	return fail("event not found in receipt logs")
}
