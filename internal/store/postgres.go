package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists values in the blocks table created by
// migrations/001_blocks.up.sql.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given connection pool.
// The pool is owned by the caller unless Close is called.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres dials url, verifies the connection and returns a store that
// owns the pool.
func ConnectPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key uint64) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM blocks WHERE height = $1`, int64(key),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get block row %d: %w", key, err)
	}
	return data, nil
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, key uint64, value []byte) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO blocks (height, data) VALUES ($1, $2)
		 ON CONFLICT (height) DO UPDATE SET data = EXCLUDED.data`,
		int64(key), value,
	); err != nil {
		return fmt.Errorf("insert block row %d: %w", key, err)
	}
	return nil
}

// Scan implements Store. Rows are streamed ordered by height.
func (s *PostgresStore) Scan(ctx context.Context, fn ScanFunc) error {
	rows, err := s.pool.Query(ctx, `SELECT height, data FROM blocks ORDER BY height ASC`)
	if err != nil {
		return fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var height int64
		var data []byte
		if err := rows.Scan(&height, &data); err != nil {
			return fmt.Errorf("scan block row: %w", err)
		}
		if err := fn(uint64(height), data); err != nil {
			return finishScan(err)
		}
	}
	return rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
