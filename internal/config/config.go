// Package config loads server configuration from an optional file,
// MYNX_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/manishnupt/mynx-file-hive/internal/auth"
	"github.com/manishnupt/mynx-file-hive/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g.
// MYNX_STORAGE_BACKEND=s3 or MYNX_AUDIT_DATABASE_URL=postgres://...
const EnvPrefix = "MYNX"

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   logging.Config  `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Folders   FoldersConfig   `mapstructure:"folders"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Auth      auth.Config     `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr" validate:"required"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size" validate:"min=1"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the object store. The backend subtrees are kept
// as raw maps and decoded by the storage factory.
type StorageConfig struct {
	Backend string         `mapstructure:"backend" validate:"required,oneof=local s3 memory"`
	S3      map[string]any `mapstructure:"s3"`
	Local   map[string]any `mapstructure:"local"`
}

// Options returns the option map for the selected backend.
func (s StorageConfig) Options() map[string]any {
	switch s.Backend {
	case "s3":
		return s.S3
	case "local":
		return s.Local
	}
	return nil
}

type FoldersConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=256"`
}

type AuditConfig struct {
	Sink          string `mapstructure:"sink" validate:"required,oneof=memory postgres badger"`
	DatabaseURL   string `mapstructure:"database_url" validate:"required_if=Sink postgres"`
	BadgerDir     string `mapstructure:"badger_dir" validate:"required_if=Sink badger"`
	QueueSize     int    `mapstructure:"queue_size" validate:"min=1"`
	Workers       int    `mapstructure:"workers" validate:"min=1,max=64"`
	RetryAttempts int    `mapstructure:"retry_attempts" validate:"min=1,max=10"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" validate:"min=0"`
}

// Load reads configuration. An empty configPath falls back to $MYNX_CONFIG
// and then to config.{yaml,toml,json} in the working directory; a missing
// file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.max_upload_size", int64(100<<20))
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.max_retries", 3)
	v.SetDefault("storage.s3.create_bucket", false)
	v.SetDefault("storage.local.root_path", "./data")
	v.SetDefault("storage.local.create_dirs", true)

	v.SetDefault("folders.concurrency", 8)

	v.SetDefault("audit.sink", "memory")
	v.SetDefault("audit.database_url", "")
	v.SetDefault("audit.badger_dir", "")
	v.SetDefault("audit.queue_size", 1024)
	v.SetDefault("audit.workers", 1)
	v.SetDefault("audit.retry_attempts", 3)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.required", false)

	v.SetDefault("ratelimit.requests_per_minute", 0)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}
