package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDBStore persists values in a LevelDB database.
type LevelDBStore struct {
	once sync.Once
	db   *leveldb.DB
	sync bool
}

// OpenLevelDB opens (or creates) a LevelDB database in directory.
// When syncWrites is true every Put is fsynced before returning.
func OpenLevelDB(directory string, syncWrites bool) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(directory, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", directory, err)
	}
	return &LevelDBStore{db: db, sync: syncWrites}, nil
}

// NewInMemoryLevelDB returns a LevelDBStore backed by LevelDB's in-memory
// storage. Useful for exercising the LevelDB code path in tests.
func NewInMemoryLevelDB() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memstorage: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Get implements Store.
func (s *LevelDBStore) Get(ctx context.Context, key uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.db.Get(encodeKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("leveldb get %d: %w", key, err)
	}
	return v, nil
}

// Put implements Store.
func (s *LevelDBStore) Put(ctx context.Context, key uint64, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(encodeKey(key), value, &opt.WriteOptions{Sync: s.sync}); err != nil {
		return fmt.Errorf("leveldb put %d: %w", key, err)
	}
	return nil
}

// Scan implements Store. Keys that are not 8-byte heights are skipped.
func (s *LevelDBStore) Scan(ctx context.Context, fn ScanFunc) error {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := decodeKey(iter.Key())
		if !ok {
			continue
		}
		// The iterator reuses its buffers between steps.
		if err := fn(key, clone(iter.Value())); err != nil {
			return finishScan(err)
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb scan: %w", err)
	}
	return nil
}

// Close implements Store. Calling it more than once is harmless.
func (s *LevelDBStore) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}
