package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReverted marks a transaction that was mined with a failed status.
	ErrReverted = errors.New("transaction reverted")
	// ErrNotConfigured is returned when an operation needs a contract that
	// was not configured for this process.
	ErrNotConfigured = errors.New("contract not configured")
)

// TransactionError wraps an RPC, gas, nonce or revert failure. The chain state
// is unchanged by the failed call, so a fresh attempt is safe; nothing here
// retries on its own.
type TransactionError struct {
	Op     string
	TxHash common.Hash
	Err    error
}

func (e *TransactionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s transaction %s: %v", e.Op, e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("%s transaction: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// UnconfirmedError means the node accepted a transaction but no receipt
// arrived before the wait ended. The transaction may still be mined, so it
// must not be resubmitted until TxHash has been checked on chain.
type UnconfirmedError struct {
	Op     string
	TxHash common.Hash
	Err    error
}

func (e *UnconfirmedError) Error() string {
	return fmt.Sprintf("%s transaction %s unconfirmed: %v", e.Op, e.TxHash.Hex(), e.Err)
}

func (e *UnconfirmedError) Unwrap() error { return e.Err }

// EventDecodeError means a transaction was mined but the expected event could
// not be read from its receipt. Whether the token exists is unknown until an
// operator inspects the transaction.
type EventDecodeError struct {
	TxHash common.Hash
	Event  string
	Reason string
}

func (e *EventDecodeError) Error() string {
	return fmt.Sprintf("decode %s in %s: %s", e.Event, e.TxHash.Hex(), e.Reason)
}
