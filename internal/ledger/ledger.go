// Package ledger persists tokenization records. Records are insert-only; the
// chain owns the token state and the ledger mirrors it for lookup.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/rwavault/internal/model"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("asset record not found")
	// ErrExists is returned when a record for the same token id is already stored.
	ErrExists = errors.New("asset record already exists")
)

// Ledger is the keyed document store behind the tokenization service.
type Ledger interface {
	// Insert stores rec, assigning ID and Timestamp when they are unset.
	Insert(ctx context.Context, rec *model.AssetRecord) error
	// FindByHash returns every record minted for a content hash, oldest first.
	FindByHash(ctx context.Context, contentHash string) ([]model.AssetRecord, error)
	GetByTokenID(ctx context.Context, tokenID uint64) (*model.AssetRecord, error)
}

func prepare(rec *model.AssetRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
}
