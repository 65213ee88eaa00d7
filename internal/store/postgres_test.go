package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/starnotary/internal/store"
	"github.com/stretchr/testify/require"
)

// postgresStore returns a PostgresStore over an emptied blocks table, or nil
// when STORAGE_POSTGRES_URL is unset. The database is truncated, so point the
// variable at a throwaway instance.
func postgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()

	url := os.Getenv("STORAGE_POSTGRES_URL")
	if url == "" {
		return nil
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	schema, err := os.ReadFile("../../migrations/001_blocks.up.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE blocks`)
	require.NoError(t, err)

	return store.NewPostgresStore(pool)
}

func TestPostgresStore_Open(t *testing.T) {
	if os.Getenv("STORAGE_POSTGRES_URL") == "" {
		t.Skip("STORAGE_POSTGRES_URL not set")
	}
	// Creates the table and empties it.
	require.NoError(t, postgresStore(t).Close())

	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{
		Driver:      store.DriverPostgres,
		PostgresURL: os.Getenv("STORAGE_POSTGRES_URL"),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put(ctx, 3, []byte("three")))
	require.NoError(t, s.Put(ctx, 3, []byte("three again")))
	got, err := s.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("three again"), got)
}
