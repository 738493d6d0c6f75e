// Package config loads vecstore settings from defaults, an optional file and
// VECSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/vecstore/codec"
	"github.com/hupe1980/vecstore/persistence"
)

// EnvPrefix is prepended to environment overrides, e.g.
// VECSTORE_LOCAL_DATA_DIR.
const EnvPrefix = "VECSTORE"

// Providers.
const (
	ProviderLocal    = "local"
	ProviderDynamoDB = "dynamodb"
)

// Blob backends for local snapshots.
const (
	BlobLocal = "local"
	BlobS3    = "s3"
	BlobMinIO = "minio"
)

// Config is the top-level vecstore configuration.
type Config struct {
	Provider string         `mapstructure:"provider"`
	LogLevel string         `mapstructure:"log_level"`
	Local    LocalConfig    `mapstructure:"local"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
}

// LocalConfig configures the in-memory store and its snapshots.
type LocalConfig struct {
	DataDir            string     `mapstructure:"data_dir"`
	Compression        string     `mapstructure:"compression"`
	Codec              string     `mapstructure:"codec"`
	MemoryLimitBytes   int64      `mapstructure:"memory_limit_bytes"`
	IOLimitBytesPerSec int64      `mapstructure:"io_limit_bytes_per_sec"`
	MaxSearchWorkers   int64      `mapstructure:"max_search_workers"`
	SearchParallelism  int        `mapstructure:"search_parallelism"`
	Blob               BlobConfig `mapstructure:"blob"`
}

// BlobConfig selects where snapshots are written.
type BlobConfig struct {
	Backend   string `mapstructure:"backend"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// DynamoDBConfig configures the remote provider.
type DynamoDBConfig struct {
	Table     string `mapstructure:"table"`
	Namespace string `mapstructure:"namespace"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
}

// SetDefaults registers every key with its default, which also makes the key
// visible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderLocal)
	v.SetDefault("log_level", "info")

	v.SetDefault("local.data_dir", "vecstore_data")
	v.SetDefault("local.compression", "lz4")
	v.SetDefault("local.codec", "go-json")
	v.SetDefault("local.memory_limit_bytes", 0)
	v.SetDefault("local.io_limit_bytes_per_sec", 0)
	v.SetDefault("local.max_search_workers", 0)
	v.SetDefault("local.search_parallelism", 0)

	v.SetDefault("local.blob.backend", BlobLocal)
	v.SetDefault("local.blob.bucket", "")
	v.SetDefault("local.blob.prefix", "")
	v.SetDefault("local.blob.region", "")
	v.SetDefault("local.blob.endpoint", "")
	v.SetDefault("local.blob.path_style", false)
	v.SetDefault("local.blob.access_key", "")
	v.SetDefault("local.blob.secret_key", "")
	v.SetDefault("local.blob.secure", true)

	v.SetDefault("dynamodb.table", "")
	v.SetDefault("dynamodb.namespace", "default")
	v.SetDefault("dynamodb.region", "")
	v.SetDefault("dynamodb.endpoint", "")
}

// Load reads configuration from path (optional) with environment overrides.
func Load(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper is Load on a caller-supplied viper instance, so command-line
// flags bound to v take precedence over file and environment.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderLocal:
		errs = append(errs, c.Local.validate()...)
	case ProviderDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("config: dynamodb.table must not be empty"))
		}
		if c.DynamoDB.Namespace == "" || strings.Contains(c.DynamoDB.Namespace, "#") {
			errs = append(errs, fmt.Errorf("config: dynamodb.namespace %q must be non-empty without '#'", c.DynamoDB.Namespace))
		}
	default:
		errs = append(errs, fmt.Errorf("config: provider must be one of [%s, %s], got %q", ProviderLocal, ProviderDynamoDB, c.Provider))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *LocalConfig) validate() []error {
	var errs []error

	if _, err := persistence.ParseCompression(l.Compression); err != nil {
		errs = append(errs, fmt.Errorf("config: local.compression: %w", err))
	}
	if _, err := codec.ByName(l.Codec); err != nil {
		errs = append(errs, fmt.Errorf("config: local.codec: %w", err))
	}
	if l.MemoryLimitBytes < 0 || l.IOLimitBytesPerSec < 0 || l.MaxSearchWorkers < 0 || l.SearchParallelism < 0 {
		errs = append(errs, errors.New("config: local limits must not be negative"))
	}

	switch l.Blob.Backend {
	case BlobLocal:
		if l.DataDir == "" {
			errs = append(errs, errors.New("config: local.data_dir must not be empty"))
		}
	case BlobS3:
		if l.Blob.Bucket == "" {
			errs = append(errs, errors.New("config: local.blob.bucket must not be empty"))
		}
	case BlobMinIO:
		if l.Blob.Bucket == "" || l.Blob.Endpoint == "" {
			errs = append(errs, errors.New("config: minio needs local.blob.bucket and local.blob.endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: local.blob.backend must be one of [%s, %s, %s], got %q",
			BlobLocal, BlobS3, BlobMinIO, l.Blob.Backend))
	}
	return errs
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}
