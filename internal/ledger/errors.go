package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for ledger lookups.
var (
	ErrNotFound      = errors.New("block not found")
	ErrCorruptRecord = errors.New("stored block cannot be decoded")
)

// StorageError reports a failure of the underlying store, as opposed to a
// plain lookup miss.
type StorageError struct {
	Op     string // get, put or scan
	Height int64  // -1 for scans
	Err    error
}

func (e *StorageError) Error() string {
	if e.Height < 0 {
		return fmt.Sprintf("ledger storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ledger storage %s height %d: %v", e.Op, e.Height, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Timeout reports whether the store call ran out of time.
func (e *StorageError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
