package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var blocksBucket = []byte("blocks")

// BoltStore persists values in a single bbolt file under the "blocks" bucket.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	}); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("create bolt bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Get implements Store.
func (s *BoltStore) Get(ctx context.Context, key uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blocksBucket).Get(encodeKey(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid for the life of the transaction.
		out = clone(v)
		return nil
	})
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("bolt get %d: %w", key, err)
	}
	return out, nil
}

// Put implements Store.
func (s *BoltStore) Put(ctx context.Context, key uint64, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Put(encodeKey(key), value)
	}); err != nil {
		return fmt.Errorf("bolt put %d: %w", key, err)
	}
	return nil
}

// Scan implements Store. The whole scan runs inside one read transaction and
// therefore sees a consistent snapshot.
func (s *BoltStore) Scan(ctx context.Context, fn ScanFunc) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(blocksBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key, ok := decodeKey(k)
			if !ok {
				continue
			}
			if err := fn(key, clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
	return finishScan(err)
}

// Close implements Store.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
