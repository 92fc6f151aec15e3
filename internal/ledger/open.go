package ledger

import (
	"context"

	"github.com/dharsanguruparan/rwavault/internal/config"
	"github.com/dharsanguruparan/rwavault/internal/database"
)

// Open builds the ledger selected by cfg.LedgerDriver. The returned close
// function releases the underlying pool and is never nil.
func Open(ctx context.Context, cfg *config.Config) (Ledger, func(), error) {
	if err := cfg.ValidateLedger(); err != nil {
		return nil, func() {}, err
	}
	if cfg.LedgerDriver == config.LedgerMemory {
		return NewMemory(), func() {}, nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, func() {}, err
	}
	return NewPostgres(pool), pool.Close, nil
}
