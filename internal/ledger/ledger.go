// Package ledger implements the single-writer, hash-linked block chain.
//
// Blocks are persisted one per height in a store.Store. Every block after
// genesis records the hash of its predecessor, and every block's own hash is
// the SHA-256 of its canonical encoding with the hash field omitted, so any
// later modification is detectable with ValidateBlock and ValidateChain.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmerrifield20/starnotary/internal/canonical"
	"github.com/jmerrifield20/starnotary/internal/store"
	"go.uber.org/zap"
)

// DefaultStoreTimeout bounds each individual store call.
const DefaultStoreTimeout = 5 * time.Second

// AppendRecorder is an optional callback invoked after each successful append.
type AppendRecorder func(r *Record)

// Ledger owns the persisted chain. It is safe for concurrent use: appends
// are serialised by a single mutex, reads never take it.
type Ledger struct {
	store    store.Store
	hasher   Hasher
	now      func() time.Time
	timeout  time.Duration
	onAppend AppendRecorder
	logger   *zap.Logger

	mu     sync.Mutex // held for the whole read-tip, compute, persist sequence
	loaded atomic.Bool
	tip    atomic.Int64 // -1 while the chain is empty
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHasher replaces the default SHA-256 hasher.
func WithHasher(h Hasher) Option {
	return func(l *Ledger) { l.hasher = h }
}

// WithClock replaces time.Now as the source of block timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithStoreTimeout bounds every store call. Zero keeps the default.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithAppendRecorder registers a callback run after each persisted block.
func WithAppendRecorder(fn AppendRecorder) Option {
	return func(l *Ledger) { l.onAppend = fn }
}

// New creates a Ledger over s. Call Init before serving traffic so that an
// empty store receives its genesis block.
func New(s store.Store, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		hasher:  SHA256Hasher{},
		now:     time.Now,
		timeout: DefaultStoreTimeout,
		logger:  logger,
	}
	l.tip.Store(-1)
	for _, o := range opts {
		o(l)
	}
	return l
}

// Init loads the current tip from the store and, if the store is empty,
// appends the genesis block. Running it on a non-empty store is a no-op.
func (l *Ledger) Init(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		return err
	}
	if tip := l.tip.Load(); tip >= 0 {
		l.logger.Info("ledger loaded", zap.Int64("height", tip))
		return nil
	}

	body, _ := canonical.JSON(GenesisBody)
	genesis, err := l.appendLocked(ctx, body)
	if err != nil {
		return fmt.Errorf("append genesis block: %w", err)
	}
	l.logger.Info("genesis block created", zap.String("hash", genesis.Hash))
	return nil
}

// AddBlock appends a block carrying body and returns the persisted record.
// body is JSON-encoded unless it already is a json.RawMessage.
func (l *Ledger) AddBlock(ctx context.Context, body any) (*Record, error) {
	raw, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		return nil, err
	}
	return l.appendLocked(ctx, raw)
}

// Height returns the height of the newest block, or -1 for an empty chain.
func (l *Ledger) Height(ctx context.Context) (int64, error) {
	if !l.loaded.Load() {
		l.mu.Lock()
		err := l.loadLocked(ctx)
		l.mu.Unlock()
		if err != nil {
			return 0, err
		}
	}
	return l.tip.Load(), nil
}

// GetBlock returns the block at height. A miss yields ErrNotFound; backend
// faults yield a *StorageError.
func (l *Ledger) GetBlock(ctx context.Context, height int64) (*Record, error) {
	if height < 0 {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	data, err := l.store.Get(cctx, uint64(height))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
		}
		return nil, &StorageError{Op: "get", Height: height, Err: err}
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: height %d: %v", ErrCorruptRecord, height, err)
	}
	if rec.Height != height {
		return nil, fmt.Errorf("%w: height %d holds block %d", ErrCorruptRecord, height, rec.Height)
	}
	return rec, nil
}

// GetBlockByHash scans the chain for the first block whose stored hash
// equals hash.
func (l *Ledger) GetBlockByHash(ctx context.Context, hash string) (*Record, error) {
	var found *Record
	err := l.scan(ctx, func(r *Record) error {
		if r.Hash == hash {
			found = r
			return store.ErrStopScan
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: hash %s", ErrNotFound, hash)
	}
	return found, nil
}

// GetBlockByWalletAddress returns every block whose body.address equals
// address, in ascending height order. The result is empty, not nil, when
// nothing matches.
func (l *Ledger) GetBlockByWalletAddress(ctx context.Context, address string) ([]*Record, error) {
	out := []*Record{}
	err := l.scan(ctx, func(r *Record) error {
		if owner, ok := r.Address(); ok && owner == address {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateBlock recomputes the hash of the block at height and compares it
// with the stored one. A mismatch is reported as false, not as an error.
func (l *Ledger) ValidateBlock(ctx context.Context, height int64) (bool, error) {
	rec, err := l.GetBlock(ctx, height)
	if err != nil {
		return false, err
	}
	_, ok := l.check(rec)
	return ok, nil
}

// ValidateChain walks the whole chain and returns every height that failed
// a check: the block's own hash, or the link from the block to its
// successor (reported under the lower height). A height can appear twice.
// Missing or undecodable blocks count as failures. Only storage faults
// abort the sweep.
func (l *Ledger) ValidateChain(ctx context.Context) ([]int64, error) {
	tip, err := l.Height(ctx)
	if err != nil {
		return nil, err
	}

	failed := []int64{}
	var prev *Record
	for h := int64(0); h <= tip; h++ {
		rec, err := l.GetBlock(ctx, h)
		if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrCorruptRecord) {
			return failed, err
		}

		if h > 0 {
			switch {
			case prev == nil || rec == nil:
				failed = append(failed, h-1)
				l.logger.Warn("block link unverifiable", zap.Int64("height", h-1))
			case rec.PreviousBlockHash != prev.Hash:
				failed = append(failed, h-1)
				l.logger.Warn("block link broken",
					zap.Int64("height", h-1),
					zap.String("hash", prev.Hash),
					zap.String("next_previous_hash", rec.PreviousBlockHash),
				)
			}
		}

		if rec == nil {
			failed = append(failed, h)
			l.logger.Warn("block unreadable", zap.Int64("height", h), zap.Error(err))
			prev = nil
			continue
		}
		if computed, ok := l.check(rec); !ok {
			failed = append(failed, h)
			l.logger.Warn("block hash invalid",
				zap.Int64("height", h),
				zap.String("stored", rec.Hash),
				zap.String("computed", computed),
			)
		}
		prev = rec
	}

	if len(failed) > 0 {
		l.logger.Warn("chain validation found errors",
			zap.Int("errors", len(failed)),
			zap.Int64s("heights", failed),
		)
	} else {
		l.logger.Debug("chain validation clean", zap.Int64("height", tip))
	}
	return failed, nil
}

// check returns the recomputed hash of r and whether it matches r.Hash.
func (l *Ledger) check(r *Record) (string, bool) {
	computed, err := digest(l.hasher, r)
	if err != nil {
		return "", false
	}
	return computed, computed == r.Hash
}

func (l *Ledger) appendLocked(ctx context.Context, body json.RawMessage) (*Record, error) {
	tip := l.tip.Load()
	rec := &Record{
		Height: tip + 1,
		Body:   body,
		Time:   l.now().Unix(),
	}
	if rec.Height > 0 {
		prev, err := l.GetBlock(ctx, tip)
		if err != nil {
			return nil, fmt.Errorf("read previous block: %w", err)
		}
		rec.PreviousBlockHash = prev.Hash
	}

	hash, err := digest(l.hasher, rec)
	if err != nil {
		return nil, err
	}
	rec.Hash = hash

	data, err := encodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", rec.Height, err)
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.store.Put(cctx, uint64(rec.Height), data); err != nil {
		return nil, &StorageError{Op: "put", Height: rec.Height, Err: err}
	}
	l.tip.Store(rec.Height)

	l.logger.Debug("block appended",
		zap.Int64("height", rec.Height),
		zap.String("hash", rec.Hash),
	)
	if l.onAppend != nil {
		l.onAppend(rec)
	}
	return rec, nil
}

// loadLocked learns the tip from a full scan the first time it is called.
func (l *Ledger) loadLocked(ctx context.Context) error {
	if l.loaded.Load() {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	tip := int64(-1)
	err := l.store.Scan(cctx, func(key uint64, _ []byte) error {
		if int64(key) > tip {
			tip = int64(key)
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "scan", Height: -1, Err: err}
	}

	l.tip.Store(tip)
	l.loaded.Store(true)
	return nil
}

// scan decodes every stored block and hands it to fn. Blocks that cannot be
// decoded are logged and skipped.
func (l *Ledger) scan(ctx context.Context, fn func(*Record) error) error {
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	err := l.store.Scan(cctx, func(key uint64, value []byte) error {
		rec, err := decodeRecord(value)
		if err != nil {
			l.logger.Warn("skipping undecodable block", zap.Uint64("height", key), zap.Error(err))
			return nil
		}
		return fn(rec)
	})
	if err != nil {
		return &StorageError{Op: "scan", Height: -1, Err: err}
	}
	return nil
}

func encodeBody(body any) (json.RawMessage, error) {
	if raw, ok := body.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("block body is not valid JSON")
		}
		return raw, nil
	}
	raw, err := canonical.JSON(body)
	if err != nil {
		return nil, fmt.Errorf("encode block body: %w", err)
	}
	return raw, nil
}
