// Package monitor stakes the custodial wallet's balance as new blocks arrive.
// Block notifications are handed to a single worker through a one-slot
// queue, so at most one stake transaction is ever in flight.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/metrics"
)

// Cycle decisions.
const (
	DecisionNoop    = "noop"
	DecisionStake   = "stake"
	DecisionUnknown = "unknown"
)

// ErrFeedClosed is returned by Run when the feed stops before ctx is done.
var ErrFeedClosed = errors.New("block feed closed")

// Staker reads balances and stakes; chain.Client implements it.
type Staker interface {
	Balance(ctx context.Context, wallet common.Address) (*big.Int, error)
	Stake(ctx context.Context, amount *big.Int) (*types.Receipt, error)
}

// StakeCycle is the outcome of one evaluation.
type StakeCycle struct {
	Block    Block
	Balance  *big.Int
	Decision string
	TxHash   string
	Err      error
	Started  time.Time
	Finished time.Time
}

// Outcome labels the cycle for metrics.
func (c StakeCycle) Outcome() string {
	if c.Err != nil {
		return "error"
	}
	return "ok"
}

// Options configures a Monitor.
type Options struct {
	Wallet       common.Address
	StakeTimeout time.Duration
	Metrics      *metrics.Stake
	Logger       *zap.Logger
	// OnCycle, when set, observes every finished cycle.
	OnCycle func(StakeCycle)
}

// Monitor runs stake cycles on new blocks.
type Monitor struct {
	feed         Feed
	staker       Staker
	wallet       common.Address
	stakeTimeout time.Duration
	metrics      *metrics.Stake
	logger       *zap.Logger
	onCycle      func(StakeCycle)
}

// New builds a Monitor.
func New(feed Feed, staker Staker, opts Options) *Monitor {
	m := &Monitor{
		feed:         feed,
		staker:       staker,
		wallet:       opts.Wallet,
		stakeTimeout: opts.StakeTimeout,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		onCycle:      opts.OnCycle,
	}
	if m.stakeTimeout <= 0 {
		m.stakeTimeout = 2 * time.Minute
	}
	if m.metrics == nil {
		m.metrics = metrics.NewStake(nil)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("monitor")
	return m
}

// Run consumes the feed until ctx is cancelled. It returns after the worker
// has finished any in-flight cycle. Blocks still queued at that point are
// dropped.
func (m *Monitor) Run(ctx context.Context) error {
	blocks, err := m.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to blocks: %w", err)
	}
	m.logger.Info("stake monitor started", zap.String("wallet", m.wallet.Hex()))

	slot := make(chan Block, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.worker(ctx, slot)
	}()

	runErr := m.dispatch(ctx, blocks, slot)
	<-done
	m.logger.Info("stake monitor stopped")
	return runErr
}

func (m *Monitor) dispatch(ctx context.Context, blocks <-chan Block, slot chan Block) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-blocks:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				// Stop the worker; the feed will not deliver again.
				close(slot)
				return ErrFeedClosed
			}
			m.submit(slot, b)
		}
	}
}

// submit queues b unless a block is already waiting.
func (m *Monitor) submit(slot chan<- Block, b Block) {
	select {
	case slot <- b:
	default:
		m.metrics.Skipped.Inc()
		m.logger.Debug("stake cycle busy, skipping block", zap.Uint64("block", b.Number))
	}
}

func (m *Monitor) worker(ctx context.Context, slot <-chan Block) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-slot:
			if !ok || ctx.Err() != nil {
				return
			}
			m.report(m.Cycle(ctx, b))
		}
	}
}

// Cycle reads the wallet balance and stakes all of it when positive. Once
// submitted, the stake call runs on a context detached from ctx and bounded
// by the stake timeout.
func (m *Monitor) Cycle(ctx context.Context, b Block) StakeCycle {
	cycle := StakeCycle{Block: b, Decision: DecisionUnknown, Started: time.Now()}

	balance, err := m.staker.Balance(ctx, m.wallet)
	if err != nil {
		cycle.Err = fmt.Errorf("read balance: %w", err)
		cycle.Finished = time.Now()
		return cycle
	}
	cycle.Balance = balance
	if balance.Sign() <= 0 {
		cycle.Decision = DecisionNoop
		cycle.Finished = time.Now()
		return cycle
	}

	cycle.Decision = DecisionStake
	stakeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.stakeTimeout)
	defer cancel()
	receipt, err := m.staker.Stake(stakeCtx, new(big.Int).Set(balance))
	if err != nil {
		cycle.Err = fmt.Errorf("stake: %w", err)
	} else {
		cycle.TxHash = receipt.TxHash.Hex()
	}
	cycle.Finished = time.Now()
	return cycle
}

func (m *Monitor) report(c StakeCycle) {
	m.metrics.Cycles.WithLabelValues(c.Decision, c.Outcome()).Inc()
	fields := []zap.Field{
		zap.Uint64("block", c.Block.Number),
		zap.String("decision", c.Decision),
		zap.Duration("took", c.Finished.Sub(c.Started)),
	}
	if c.Balance != nil {
		m.metrics.Balance.Set(balanceFloat(c.Balance))
		fields = append(fields, zap.Stringer("balance", c.Balance))
	}
	switch {
	case c.Err != nil:
		m.logger.Error("stake cycle failed", append(fields, zap.Error(c.Err))...)
	case c.Decision == DecisionStake:
		m.logger.Info("balance staked", append(fields, zap.String("txHash", c.TxHash))...)
	default:
		m.logger.Debug("nothing to stake", fields...)
	}
	if m.onCycle != nil {
		m.onCycle(c)
	}
}

func balanceFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
