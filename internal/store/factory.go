package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Driver names a Store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverLevelDB  Driver = "leveldb"
	DriverBolt     Driver = "bolt"
	DriverPostgres Driver = "postgres"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver Driver `mapstructure:"driver"`

	// Path is the LevelDB directory or the bbolt file.
	Path string `mapstructure:"path"`

	// PostgresURL is the connection string for DriverPostgres.
	PostgresURL string `mapstructure:"postgres_url"`

	// SyncWrites fsyncs every LevelDB write.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// Validate checks that the configuration names a known driver and carries
// the settings that driver needs.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverLevelDB, DriverBolt:
		if c.Path == "" {
			return fmt.Errorf("storage path is required for driver %q", c.Driver)
		}
		return nil
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres url is required for driver %q", c.Driver)
		}
		return nil
	case "":
		return fmt.Errorf("storage driver cannot be empty")
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Driver)
	}
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverLevelDB:
		return OpenLevelDB(cfg.Path, cfg.SyncWrites)
	case DriverBolt:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create bolt directory: %w", err)
			}
		}
		return OpenBolt(cfg.Path)
	case DriverPostgres:
		return ConnectPostgres(ctx, cfg.PostgresURL)
	default:
		return NewMemoryStore(), nil
	}
}
