package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/rwavault/internal/ledger"
	"github.com/dharsanguruparan/rwavault/internal/queue"
)

// Processor is plugged into the asynq worker loop. It only ever writes the
// ledger; it never submits chain transactions.
type Processor struct {
	ledger ledger.Ledger
	logger *zap.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(l ledger.Ledger, logger *zap.Logger) *Processor {
	return &Processor{ledger: l, logger: logger.Named("reconcile")}
}

// Handler registers the reconcile job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ReconcileTask, p.HandleReconcile)
	return mux
}

// HandleReconcile writes the record of an orphaned mint. A record that is
// already present counts as reconciled; any other error is returned so asynq
// retries with backoff.
func (p *Processor) HandleReconcile(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeReconcile(task)
	if err != nil {
		// Retrying cannot fix a malformed payload.
		p.logger.Error("dropping reconcile task", zap.Error(err))
		return errors.Join(err, asynq.SkipRetry)
	}
	rec := payload.Record
	fields := []zap.Field{
		zap.Uint64("tokenId", rec.TokenID),
		zap.String("contentHash", rec.ContentHash),
		zap.String("txHash", rec.TxHash),
	}
	if err := p.ledger.Insert(ctx, &rec); err != nil {
		if errors.Is(err, ledger.ErrExists) {
			p.logger.Info("record already reconciled", fields...)
			return nil
		}
		p.logger.Warn("reconcile attempt failed", append(fields, zap.Error(err))...)
		return err
	}
	p.logger.Info("orphaned mint reconciled", append(fields, zap.String("id", rec.ID))...)
	return nil
}
