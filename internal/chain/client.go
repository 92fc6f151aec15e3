// Package chain is the only place rwavault signs and submits transactions.
// A Client holds the custodial key, binds the NFT, staking and optional
// ERC-20 contracts, and serializes nonce assignment for the signer so the
// tokenize requests and the stake monitor can share one instance.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/config"
)

// Backend is the subset of ethclient.Client the Client relies on.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Options configures a Client built with NewWithBackend. Zero contract
// addresses leave the matching operations unavailable.
type Options struct {
	ChainID         *big.Int
	NFTContract     common.Address
	NFTABI          abi.ABI
	MintEvent       string
	MintGasLimit    uint64
	StakingContract common.Address
	StakeToken      common.Address
	StakeGasLimit   uint64
	ReceiptTimeout  time.Duration
	Logger          *zap.Logger
}

// MintResult is returned once a mint transaction has been mined and its
// event decoded.
type MintResult struct {
	TokenID uint64
	Receipt *types.Receipt
}

// Client signs and submits transactions with a single custodial key.
type Client struct {
	backend Backend
	auth    *bind.TransactOpts
	logger  *zap.Logger
	closeFn func()

	nftAddr     common.Address
	nftABI      abi.ABI
	nft         *bind.BoundContract
	mintEvent   string
	mintGas     uint64
	stakingAddr common.Address
	staking     *bind.BoundContract
	token       *bind.BoundContract
	stakeGas    uint64
	receiptWait time.Duration

	// nonceMu serializes submissions so concurrent callers never reuse a nonce.
	nonceMu     sync.Mutex
	nextNonce   uint64
	nonceLoaded bool
}

// ParseKey decodes a hex encoded secp256k1 private key. The error never
// echoes key material.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, &config.Error{Field: "PRIVATE_KEY", Reason: "required"}
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, &config.Error{Field: "PRIVATE_KEY", Reason: "malformed private key"}
	}
	return key, nil
}

// New dials the configured RPC endpoint and builds a Client. Any problem with
// the key or contract addresses is reported as *config.Error.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	key, err := ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	opts := Options{
		MintEvent:      cfg.MintEvent,
		MintGasLimit:   cfg.MintGasLimit,
		StakeGasLimit:  cfg.StakeGasLimit,
		ReceiptTimeout: cfg.ReceiptTimeout,
		Logger:         logger,
	}
	if opts.NFTContract, err = parseAddress("NFT_CONTRACT", cfg.NFTContract); err != nil {
		return nil, err
	}
	if opts.StakingContract, err = parseAddress("STAKING_CONTRACT", cfg.StakingContract); err != nil {
		return nil, err
	}
	if opts.StakeToken, err = parseAddress("STAKE_TOKEN", cfg.StakeToken); err != nil {
		return nil, err
	}
	if opts.NFTABI, err = LoadABI(cfg.ContractABIPath); err != nil {
		return nil, &config.Error{Field: "CONTRACT_ABI_PATH", Reason: err.Error()}
	}
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	if opts.ChainID, err = rpc.ChainID(ctx); err != nil {
		rpc.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	client, err := NewWithBackend(rpc, key, opts)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	client.closeFn = rpc.Close
	return client, nil
}

// NewWithBackend builds a Client over an already connected backend.
func NewWithBackend(backend Backend, key *ecdsa.PrivateKey, opts Options) (*Client, error) {
	if key == nil {
		return nil, &config.Error{Field: "PRIVATE_KEY", Reason: "required"}
	}
	if opts.ChainID == nil {
		return nil, errors.New("chain id required")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, opts.ChainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MintEvent == "" {
		opts.MintEvent = DefaultMintEvent
	}
	c := &Client{
		backend:     backend,
		auth:        auth,
		logger:      logger.Named("chain"),
		nftAddr:     opts.NFTContract,
		nftABI:      opts.NFTABI,
		mintEvent:   opts.MintEvent,
		mintGas:     opts.MintGasLimit,
		stakingAddr: opts.StakingContract,
		stakeGas:    opts.StakeGasLimit,
		receiptWait: opts.ReceiptTimeout,
	}
	if c.receiptWait <= 0 {
		c.receiptWait = 2 * time.Minute
	}
	if opts.NFTContract != (common.Address{}) {
		if _, ok := opts.NFTABI.Events[opts.MintEvent]; !ok {
			return nil, &config.Error{Field: "MINT_EVENT", Reason: fmt.Sprintf("event %q not present in contract abi", opts.MintEvent)}
		}
		if _, ok := opts.NFTABI.Methods["mintWithLock"]; !ok {
			return nil, &config.Error{Field: "CONTRACT_ABI_PATH", Reason: "abi has no mintWithLock method"}
		}
		c.nft = bind.NewBoundContract(opts.NFTContract, opts.NFTABI, backend, backend, backend)
	}
	if opts.StakingContract != (common.Address{}) {
		parsed, err := stakingABI()
		if err != nil {
			return nil, fmt.Errorf("parse staking abi: %w", err)
		}
		c.staking = bind.NewBoundContract(opts.StakingContract, parsed, backend, backend, backend)
	}
	if opts.StakeToken != (common.Address{}) {
		parsed, err := erc20ABI()
		if err != nil {
			return nil, fmt.Errorf("parse erc20 abi: %w", err)
		}
		c.token = bind.NewBoundContract(opts.StakeToken, parsed, backend, backend, backend)
	}
	return c, nil
}

// Address returns the custodial signer address.
func (c *Client) Address() common.Address {
	return c.auth.From
}

// Close releases the RPC connection when the Client owns one.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Mint calls mintWithLock(owner, metadataURI, custodian) and blocks until the
// transaction is mined. It never retries: a second submission could mint a
// second token.
func (c *Client) Mint(ctx context.Context, owner common.Address, metadataURI string, custodian common.Address) (*MintResult, error) {
	if c.nft == nil {
		return nil, &TransactionError{Op: "mint", Err: ErrNotConfigured}
	}
	receipt, err := c.execute(ctx, "mint", c.nft, c.mintGas, "mintWithLock", owner, metadataURI, custodian)
	if err != nil {
		return nil, err
	}
	tokenID, err := c.decodeMintEvent(receipt)
	if err != nil {
		return nil, err
	}
	c.logger.Info("mint confirmed",
		zap.Uint64("tokenId", tokenID),
		zap.String("owner", owner.Hex()),
		zap.String("txHash", receipt.TxHash.Hex()),
	)
	return &MintResult{TokenID: tokenID, Receipt: receipt}, nil
}

// Stake submits stake(amount) to the staking contract. When a stake token is
// configured the staking contract is approved for amount first if its
// current allowance is lower.
func (c *Client) Stake(ctx context.Context, amount *big.Int) (*types.Receipt, error) {
	if c.staking == nil {
		return nil, &TransactionError{Op: "stake", Err: ErrNotConfigured}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, &TransactionError{Op: "stake", Err: errors.New("amount must be positive")}
	}
	if c.token != nil {
		if err := c.ensureAllowance(ctx, amount); err != nil {
			return nil, err
		}
	}
	return c.execute(ctx, "stake", c.staking, c.stakeGas, "stake", amount)
}

// Balance returns the wallet's stake token balance, or its native balance
// when no stake token is configured.
func (c *Client) Balance(ctx context.Context, wallet common.Address) (*big.Int, error) {
	if c.token == nil {
		bal, err := c.backend.BalanceAt(ctx, wallet, nil)
		if err != nil {
			return nil, fmt.Errorf("read balance: %w", err)
		}
		return bal, nil
	}
	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", wallet); err != nil {
		return nil, fmt.Errorf("read token balance: %w", err)
	}
	return firstBigInt(out)
}

// SubscribeNewHead exposes the backend's head subscription to block feeds.
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.backend.SubscribeNewHead(ctx, ch)
}

// HeaderByNumber exposes the backend's header lookup; nil means latest.
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.backend.HeaderByNumber(ctx, number)
}

func (c *Client) ensureAllowance(ctx context.Context, amount *big.Int) error {
	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", c.auth.From, c.stakingAddr); err != nil {
		return &TransactionError{Op: "allowance", Err: err}
	}
	current, err := firstBigInt(out)
	if err != nil {
		return &TransactionError{Op: "allowance", Err: err}
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	c.logger.Info("approving staking contract", zap.String("amount", amount.String()))
	_, err = c.execute(ctx, "approve", c.token, c.stakeGas, "approve", c.stakingAddr, amount)
	return err
}

// execute submits a call and waits for a successful receipt. A send failure
// is a TransactionError; a sent transaction without a receipt in time is an
// UnconfirmedError.
func (c *Client) execute(ctx context.Context, op string, contract *bind.BoundContract, gasLimit uint64, method string, params ...interface{}) (*types.Receipt, error) {
	tx, err := c.submit(ctx, contract, gasLimit, method, params...)
	if err != nil {
		return nil, &TransactionError{Op: op, Err: err}
	}
	c.logger.Debug("transaction submitted",
		zap.String("op", op),
		zap.String("txHash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
	)
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptWait)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		c.logger.Error("transaction unconfirmed",
			zap.String("op", op),
			zap.String("txHash", tx.Hash().Hex()),
			zap.Uint64("nonce", tx.Nonce()),
			zap.Error(err),
		)
		return nil, &UnconfirmedError{Op: op, TxHash: tx.Hash(), Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &TransactionError{Op: op, TxHash: tx.Hash(), Err: ErrReverted}
	}
	return receipt, nil
}

// submit signs and sends one transaction while holding the nonce lock. The
// lock is released before waiting for the receipt so submissions pipeline.
func (c *Client) submit(ctx context.Context, contract *bind.BoundContract, gasLimit uint64, method string, params ...interface{}) (*types.Transaction, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	if !c.nonceLoaded {
		nonce, err := c.backend.PendingNonceAt(ctx, c.auth.From)
		if err != nil {
			return nil, fmt.Errorf("read pending nonce: %w", err)
		}
		c.nextNonce = nonce
		c.nonceLoaded = true
	}
	opts := &bind.TransactOpts{
		From:     c.auth.From,
		Signer:   c.auth.Signer,
		Nonce:    new(big.Int).SetUint64(c.nextNonce),
		GasLimit: gasLimit,
		Context:  ctx,
	}
	tx, err := contract.Transact(opts, method, params...)
	if err != nil {
		// The node may or may not have seen the nonce; reload it next time.
		c.nonceLoaded = false
		return nil, err
	}
	c.nextNonce++
	return tx, nil
}

func firstBigInt(out []interface{}) (*big.Int, error) {
	if len(out) == 0 {
		return nil, errors.New("empty call result")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected call result type %T", out[0])
	}
	return v, nil
}

func parseAddress(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, &config.Error{Field: field, Reason: "not a hex address"}
	}
	return common.HexToAddress(value), nil
}
