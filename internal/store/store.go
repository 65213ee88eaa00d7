// Package store provides the key/value persistence used by the ledger.
//
// Every backend keys values by block height and iterates them in ascending
// height order. Four implementations are provided:
//   - MemoryStore: in-process, for tests and throwaway nodes.
//   - LevelDBStore: on-disk LevelDB, the default.
//   - BoltStore: single-file bbolt database.
//   - PostgresStore: the blocks table of a PostgreSQL database.
package store

import (
	"context"
	"encoding/binary"
	"errors"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("store: key not found")

// ErrStopScan may be returned from a Scan callback to end iteration early
// without Scan reporting an error.
var ErrStopScan = errors.New("store: stop scan")

// ScanFunc is called once per stored value, in ascending key order.
// The value slice is owned by the callee.
type ScanFunc func(key uint64, value []byte) error

// Store is the persistence contract the ledger depends on.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key uint64) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key uint64, value []byte) error

	// Scan calls fn for every stored value in ascending key order.
	Scan(ctx context.Context, fn ScanFunc) error

	// Close releases the backend.
	Close() error
}

// encodeKey renders a height as 8 big-endian bytes so that byte-wise key
// order equals numeric order.
func encodeKey(key uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], key)
	return b[:]
}

func decodeKey(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// finishScan converts the ErrStopScan sentinel into a clean stop.
func finishScan(err error) error {
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	return err
}
