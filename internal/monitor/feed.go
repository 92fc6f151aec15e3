package monitor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"go.uber.org/zap"
)

// Block is a new-block notification.
type Block struct {
	Number uint64
	Hash   common.Hash
}

func blockFromHeader(h *types.Header) Block {
	return Block{Number: h.Number.Uint64(), Hash: h.Hash()}
}

// Feed delivers new-block notifications until ctx is cancelled, then closes
// the channel.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan Block, error)
}

// HeadSource is implemented by chain.Client over a websocket RPC.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// HeadFeed follows eth_subscribe newHeads and resubscribes with backoff when
// the subscription drops.
type HeadFeed struct {
	source     HeadSource
	maxBackoff time.Duration
	logger     *zap.Logger
}

// NewHeadFeed returns a HeadFeed. maxBackoff caps the wait between
// resubscribe attempts.
func NewHeadFeed(source HeadSource, maxBackoff time.Duration, logger *zap.Logger) *HeadFeed {
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeadFeed{source: source, maxBackoff: maxBackoff, logger: logger.Named("heads")}
}

// Subscribe implements Feed.
func (f *HeadFeed) Subscribe(ctx context.Context) (<-chan Block, error) {
	heads := make(chan *types.Header, 16)
	sub := event.ResubscribeErr(f.maxBackoff, func(subCtx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			f.logger.Warn("head subscription dropped, resubscribing", zap.Error(lastErr))
		}
		s, err := f.source.SubscribeNewHead(subCtx, heads)
		if err != nil {
			f.logger.Warn("head subscription failed", zap.Error(err))
			return nil, err
		}
		return s, nil
	})

	out := make(chan Block)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case h := <-heads:
				select {
				case out <- blockFromHeader(h):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// HeaderSource reads the latest header; chain.Client implements it.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// PollFeed polls the latest header and emits each new block number once.
// It serves RPC endpoints without subscription support.
type PollFeed struct {
	source   HeaderSource
	interval time.Duration
	logger   *zap.Logger
}

// NewPollFeed returns a PollFeed ticking every interval.
func NewPollFeed(source HeaderSource, interval time.Duration, logger *zap.Logger) *PollFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollFeed{source: source, interval: interval, logger: logger.Named("poll")}
}

// Subscribe implements Feed.
func (f *PollFeed) Subscribe(ctx context.Context) (<-chan Block, error) {
	out := make(chan Block)
	go func() {
		defer close(out)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		var last uint64
		seen := false
		for {
			h, err := f.source.HeaderByNumber(ctx, nil)
			switch {
			case err != nil:
				if ctx.Err() == nil {
					f.logger.Warn("poll latest header failed", zap.Error(err))
				}
			case !seen || h.Number.Uint64() > last:
				seen = true
				last = h.Number.Uint64()
				select {
				case out <- blockFromHeader(h):
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}
