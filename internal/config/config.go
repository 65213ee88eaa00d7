// Package config loads starnotary configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/starnotary/internal/logging"
	"github.com/jmerrifield20/starnotary/internal/store"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Mempool   MempoolConfig   `mapstructure:"mempool"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	API       APIConfig       `mapstructure:"api"`
	Log       logging.Config  `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	GRPCPort     int      `mapstructure:"grpc_port"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	RateLimitRPS float64  `mapstructure:"rate_limit_rps"`
}

type StorageConfig struct {
	store.Config `mapstructure:",squash"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type MempoolConfig struct {
	Window time.Duration `mapstructure:"window"`
}

type IntegrityConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type APIConfig struct {
	RequireRegistrationToken bool   `mapstructure:"require_registration_token"`
	TokenSecret              string `mapstructure:"token_secret"`
	Issuer                   string `mapstructure:"issuer"`
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_port", 9000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("storage.driver", string(store.DriverLevelDB))
	v.SetDefault("storage.path", "data/chain")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.sync_writes", false)
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("mempool.window", "300s")
	v.SetDefault("integrity.enabled", true)
	v.SetDefault("integrity.interval", "10m")
	v.SetDefault("api.require_registration_token", false)
	v.SetDefault("api.token_secret", "")
	v.SetDefault("api.issuer", "starnotary")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads configuration. file, when non-empty, names the config file;
// otherwise starnotary.yaml is searched for in configs/ and the working
// directory. A missing search-path file is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("starnotary")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Storage.Config.Validate(); err != nil {
		return err
	}
	if c.Mempool.Window <= 0 {
		return fmt.Errorf("mempool.window must be positive")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	return nil
}
