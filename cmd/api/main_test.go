package main

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/chain"
	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/monitor"
	"github.com/dharsanguruparan/rwavault/internal/tokenize"
)

const owner = "0x1111111111111111111111111111111111111111"

// fakeSigner records every transaction in the order it would be signed.
type fakeSigner struct {
	mu      sync.Mutex
	addr    common.Address
	balance *big.Int
	sent    []string
}

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) Mint(context.Context, common.Address, string, common.Address) (*chain.MintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "mint")
	return &chain.MintResult{TokenID: uint64(len(f.sent)), Receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}, nil
}

func (f *fakeSigner) Stake(context.Context, *big.Int) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, "stake")
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeSigner) Balance(_ context.Context, wallet common.Address) (*big.Int, error) {
	if wallet != f.addr {
		return nil, errors.New("unexpected wallet")
	}
	return f.balance, nil
}

func (f *fakeSigner) SubscribeNewHead(context.Context, chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeSigner) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (f *fakeSigner) transactions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestNewMonitorDisabledWithoutStakingContract(t *testing.T) {
	m, err := newMonitor(&config.Config{}, &fakeSigner{}, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewMonitorRejectsBadWallet(t *testing.T) {
	cfg := &config.Config{StakingContract: "0x00000000000000000000000000000000000000b2", StakeWallet: "alice"}
	_, err := newMonitor(cfg, &fakeSigner{}, prometheus.NewRegistry(), zap.NewNop())
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "STAKE_WALLET", cerr.Field)
}

func TestMonitorAndTokenizeShareSigner(t *testing.T) {
	client := &fakeSigner{addr: common.HexToAddress("0x3333333333333333333333333333333333333333"), balance: big.NewInt(9)}
	cfg := &config.Config{StakingContract: "0x00000000000000000000000000000000000000b2", BlockPollInterval: time.Second}

	svc := tokenize.New(client, ledger.NewMemory(), tokenize.Options{Custodian: client.Address()})
	m, err := newMonitor(cfg, client, prometheus.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = svc.Tokenize(context.Background(), tokenize.Request{Data: []byte("hello-world"), Owner: owner})
	require.NoError(t, err)
	cycle := m.Cycle(context.Background(), monitor.Block{Number: 1})
	require.NoError(t, cycle.Err)
	assert.Equal(t, monitor.DecisionStake, cycle.Decision)
	_, err = svc.Tokenize(context.Background(), tokenize.Request{Data: []byte("second"), Owner: owner})
	require.NoError(t, err)

	assert.Equal(t, []string{"mint", "stake", "mint"}, client.transactions())
}

func TestServeStopsAllRunnersWhenOneFails(t *testing.T) {
	boom := errors.New("listen: address in use")
	stopped := make(chan struct{})
	err := serve(context.Background(),
		func(context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		},
	)
	assert.ErrorIs(t, err, boom)
	select {
	case <-stopped:
	default:
		t.Fatal("serve returned before every runner stopped")
	}
}

func TestServeReturnsNilOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := serve(ctx,
		func(ctx context.Context) error { <-ctx.Done(); return nil },
		func(ctx context.Context) error { <-ctx.Done(); return nil },
	)
	assert.NoError(t, err)
}
