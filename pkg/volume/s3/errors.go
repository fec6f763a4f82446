package s3

import (
	"errors"
	"fmt"
)

// ErrTransfer indicates a transfer transaction that did not commit. Match
// it with errors.Is; the concrete cause (a failed part, a cancelled
// context) stays reachable through the error chain.
var ErrTransfer = errors.New("transfer failed")

// TransferError reports a failed transfer transaction for one object key.
// By the time the caller sees it the transaction has already been aborted,
// so no partial upload is left behind.
type TransferError struct {
	// Key is the destination object key of the failed transfer.
	Key string

	// Err is the underlying cause.
	Err error
}

// Error renders the key together with the cause.
func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.Key, e.Err)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *TransferError) Unwrap() error { return e.Err }

// Is matches ErrTransfer, so callers can test the class without knowing
// the concrete type.
func (e *TransferError) Is(target error) bool { return target == ErrTransfer }
