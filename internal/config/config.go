// Package config loads application configuration. Values come from an
// optional config.yaml, overridden by FORMSYNC_* environment variables; a
// local .env file is folded into the environment first so dev setups need no
// exported shell state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects and tunes the storage backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SyncConfig tunes the auto-sync scheduler.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	AutoStart  bool          `mapstructure:"auto_start"`
	SampleRows int           `mapstructure:"sample_rows"` // rows the classifier inspects
	SeedDemo   bool          `mapstructure:"seed_demo"`   // load demo raw tabs on startup
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration with defaults suitable for local development.
// A missing config file is fine; a malformed one is not.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "formsync.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.auto_start", true)
	v.SetDefault("sync.sample_rows", 5)
	v.SetDefault("sync.seed_demo", false)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("FORMSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.Sync.Interval)
	}
	return nil
}
