// Package config loads opsdesk configuration from opsdesk.yaml and
// OPSDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"opsdesk/internal/core/numbering"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverEmbedded = "embedded"
)

type Configuration struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tx        TxConfig        `mapstructure:"tx"`
	Numbering NumberingConfig `mapstructure:"numbering"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type StorageConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=postgres embedded"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Embedded EmbeddedConfig `mapstructure:"embedded"`
}

type PostgresConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	MigrateOnStart   bool          `mapstructure:"migrate_on_start"`
	AuditCompressMin int           `mapstructure:"audit_compress_min"`
}

type EmbeddedConfig struct {
	Path       string `mapstructure:"path"`
	InMemory   bool   `mapstructure:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes"`
}

// TxConfig bounds transaction retries on serialization conflicts.
type TxConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts" validate:"gte=1,lte=50"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" validate:"gte=0"`
}

// NumberingConfig overrides the prefixes seeded into new counters, keyed by
// document kind.
type NumberingConfig struct {
	DefaultPrefixes     map[string]string `mapstructure:"default_prefixes"`
	BackfillConcurrency int               `mapstructure:"backfill_concurrency" validate:"gte=1"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("storage.driver", DriverEmbedded)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 25)
	v.SetDefault("storage.postgres.min_conns", 5)
	v.SetDefault("storage.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.postgres.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("storage.postgres.migrate_on_start", true)
	v.SetDefault("storage.postgres.audit_compress_min", 10*1024)
	v.SetDefault("storage.embedded.path", "./data")
	v.SetDefault("storage.embedded.in_memory", false)
	v.SetDefault("storage.embedded.sync_writes", true)

	v.SetDefault("tx.max_attempts", 10)
	v.SetDefault("tx.statement_timeout", 30*time.Second)

	v.SetDefault("numbering.default_prefixes", map[string]string{})
	v.SetDefault("numbering.backfill_concurrency", 4)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads configuration. configFile may be empty, in which case
// opsdesk.yaml is looked up in the working directory, ./config and
// /etc/opsdesk; a missing file is not an error.
func Load(configFile string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("opsdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/opsdesk")
	}

	v.SetEnvPrefix("OPSDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the numbering prefixes.
func (c Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Driver == DriverPostgres && c.Storage.Postgres.DSN == "" {
		return errors.New("invalid config: storage.postgres.dsn is required for the postgres driver")
	}
	if c.Storage.Driver == DriverEmbedded && !c.Storage.Embedded.InMemory && c.Storage.Embedded.Path == "" {
		return errors.New("invalid config: storage.embedded.path is required unless in_memory is set")
	}
	if _, err := c.Numbering.Prefixes(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Prefixes returns the default prefix of every document kind with the
// configured overrides applied.
func (n NumberingConfig) Prefixes() (map[numbering.Kind]string, error) {
	out := make(map[numbering.Kind]string, len(numbering.Kinds()))
	for _, k := range numbering.Kinds() {
		out[k] = k.DefaultPrefix()
	}
	for raw, prefix := range n.DefaultPrefixes {
		k, err := numbering.ParseKind(raw)
		if err != nil {
			return nil, fmt.Errorf("numbering.default_prefixes: %w", err)
		}
		if err := numbering.ValidatePrefix(prefix); err != nil {
			return nil, fmt.Errorf("numbering.default_prefixes.%s: %w", raw, err)
		}
		out[k] = prefix
	}
	return out, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Configuration {
	v := viper.New()
	setDefaults(v)
	var cfg Configuration
	_ = v.Unmarshal(&cfg)
	return &cfg
}
