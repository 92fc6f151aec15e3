package tokenize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/rwavault/internal/chain"
	"github.com/dharsanguruparan/rwavault/internal/model"
)

// Error kinds reported by Kind. They label logs and metrics; the HTTP
// response does not expose them.
const (
	KindSuccess     = "success"
	KindInput       = "input"
	KindDuplicate   = "duplicate"
	KindTransaction = "transaction"
	KindUnconfirmed = "unconfirmed"
	KindEventDecode = "event_decode"
	KindPersistence = "persistence"
	KindCanceled    = "canceled"
	KindInternal    = "internal"
)

// InputError reports a missing or malformed upload field. Nothing was sent
// to the chain; the caller may fix the input and resubmit.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateError is returned under the reject-duplicate policy when the
// content hash already has ledger records.
type DuplicateError struct {
	ContentHash string
	TokenIDs    []uint64
}

func (e *DuplicateError) Error() string {
	ids := make([]string, len(e.TokenIDs))
	for i, id := range e.TokenIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("content %s already tokenized as %s", e.ContentHash, strings.Join(ids, ","))
}

// PersistenceError means the mint succeeded on chain but the ledger write
// failed. The token exists; only the local record is missing. Record holds
// everything needed to write it later.
type PersistenceError struct {
	Record model.AssetRecord
	// Queued reports whether the record was handed to the reconcile queue.
	Queued bool
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("token %d minted but ledger write failed: %v", e.Record.TokenID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Kind classifies err into one of the Kind* labels. A context error only
// counts as canceled when nothing was sent to the chain; an unconfirmed
// transaction stays unconfirmed even though its wait timed out.
func Kind(err error) string {
	var (
		inputErr   *InputError
		dupErr     *DuplicateError
		persistErr *PersistenceError
		txErr      *chain.TransactionError
		pendingErr *chain.UnconfirmedError
		decodeErr  *chain.EventDecodeError
	)
	switch {
	case err == nil:
		return KindSuccess
	case errors.As(err, &persistErr):
		return KindPersistence
	case errors.As(err, &inputErr):
		return KindInput
	case errors.As(err, &dupErr):
		return KindDuplicate
	case errors.As(err, &decodeErr):
		return KindEventDecode
	case errors.As(err, &pendingErr):
		return KindUnconfirmed
	case errors.As(err, &txErr):
		return KindTransaction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
