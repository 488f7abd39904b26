package storage

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// Hive is a logical partition of the persisted store
type Hive string

const (
	// HiveMachine holds providers installed for every user of the host
	HiveMachine Hive = "machine"
	// HiveUser holds providers installed for the current user only
	HiveUser Hive = "user"
)

// Validate checks that h is a known hive
func (h Hive) Validate() error {
	switch h {
	case HiveMachine, HiveUser:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHive, string(h))
	}
}

// ParseHive converts a hive name, accepting the registry root aliases
func ParseHive(s string) (Hive, error) {
	switch s {
	case "machine", "HKLM", "hklm", "per-machine":
		return HiveMachine, nil
	case "user", "HKCU", "hkcu", "per-user":
		return HiveUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidHive, s)
	}
}

// Attributes is a per-row bitmask. Bits other than the ones documented here
// are stored and returned unchanged.
type Attributes int

const (
	// AttributeIgnoreDependent marks a dependent row that must not block
	// removal of its provider
	AttributeIgnoreDependent Attributes = 1 << 0
)

// Has reports whether every bit of flag is set
func (a Attributes) Has(flag Attributes) bool {
	return a&flag == flag
}

// Provider is a registered shared component
type Provider struct {
	Key         string     `json:"key"`
	Version     string     `json:"version"`
	DisplayName string     `json:"display_name,omitempty"`
	Attributes  Attributes `json:"attributes,omitempty"`
}

// Dependent is a package that declared reliance on a provider
type Dependent struct {
	Key        string     `json:"key"`
	MinVersion string     `json:"min_version,omitempty"`
	MaxVersion string     `json:"max_version,omitempty"`
	Attributes Attributes `json:"attributes,omitempty"`
}

// ProviderReader reads provider and dependent rows
type ProviderReader interface {
	// ReadProvider returns the provider row or ErrNotFound
	ReadProvider(ctx context.Context, hive Hive, key string) (*Provider, error)

	// ReadProviderVersion returns the provider's version or ErrNotFound
	ReadProviderVersion(ctx context.Context, hive Hive, key string) (string, error)

	// EnumerateDependents returns the dependents registered under key,
	// ordered by normalized dependent key. The sequence is lazy and each call
	// starts a fresh enumeration. A provider without dependents yields nothing.
	EnumerateDependents(ctx context.Context, hive Hive, key string) iter.Seq2[Dependent, error]
}

// ProviderWriter creates and removes provider and dependent rows
type ProviderWriter interface {
	// WriteProvider creates or overwrites a provider row
	WriteProvider(ctx context.Context, hive Hive, provider Provider) error

	// DeleteProvider removes a provider row, returning ErrNotFound if absent.
	// Dependent rows under the provider are left in place.
	DeleteProvider(ctx context.Context, hive Hive, key string) error

	// WriteDependent creates or overwrites a dependent row under dependencyKey
	WriteDependent(ctx context.Context, hive Hive, dependencyKey string, dependent Dependent) error

	// DeleteDependent removes a dependent row. It returns ErrNotFound only
	// when neither the dependency row nor the dependent row exists.
	DeleteDependent(ctx context.Context, hive Hive, dependencyKey, dependentKey string) error
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderStore is the persisted key/value store behind the registry
type ProviderStore interface {
	ProviderReader
	ProviderWriter
	HealthChecker

	// Name identifies the backend in logs and metrics
	Name() string

	Close() error
}

// Config for storage backend
type Config struct {
	Type string `yaml:"type"` // "filesystem", "sqlite", "postgres", "redis", "s3"

	// Filesystem config
	FilesystemRoot string `yaml:"filesystem_root"`

	// SQLite config
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`

	// SQLTimeout bounds the connection ping of both SQL backends
	SQLTimeout time.Duration `yaml:"sql_timeout"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisPrefix     string `yaml:"redis_prefix"`

	// S3 config
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3Prefix       string `yaml:"s3_prefix"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "filesystem",
		FilesystemRoot:   "/var/lib/depreg",
		SQLitePath:       "/var/lib/depreg/registry.db",
		PostgresMaxConns: 10,
		PostgresMinConns: 2,
		SQLTimeout:       10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		RedisPrefix:      "depreg",
		S3Region:         "us-east-1",
		S3Prefix:         "depreg",
	}
}
