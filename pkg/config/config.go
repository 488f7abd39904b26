package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/depreg/pkg/audit"
	"github.com/platinummonkey/depreg/pkg/httputil"
	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/version"
)

// ConfigFileEnv names the environment variable holding the optional YAML file path
const ConfigFileEnv = "DEPREG_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Registry configuration
	Registry RegistryConfig `yaml:"registry"`

	// Audit configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimit applies per client IP; zero requests disables it
	RateLimit httputil.RateLimitConfig `yaml:"rate_limit"`
}

// RegistryConfig holds dependency registry settings
type RegistryConfig struct {
	// DefaultHive is used when a command does not name a hive
	DefaultHive string `yaml:"default_hive"`

	// VersionCacheSize bounds the parsed version cache; 0 disables it
	VersionCacheSize int `yaml:"version_cache_size"`
}

// AuditConfig controls the registry mutation journal
type AuditConfig struct {
	Enabled bool                   `yaml:"enabled"`
	File    audit.FileLoggerConfig `yaml:"file"`

	// Log also writes audit events to the application log
	Log bool `yaml:"log"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	// OTel configures OTLP trace and metric export
	OTel observability.OTelConfig `yaml:"otel"`
}

// Default returns the configuration used before any file or environment
// variable is applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: httputil.RateLimitConfig{
				WindowDuration: time.Minute,
			},
		},
		Storage: storage.DefaultConfig(),
		Registry: RegistryConfig{
			DefaultHive:      string(storage.HiveMachine),
			VersionCacheSize: version.DefaultCacheSize,
		},
		Audit: AuditConfig{
			File: audit.DefaultFileLoggerConfig(),
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel:           observability.DefaultOTelConfig(),
		},
	}
}

// LoadConfig loads the YAML file named by DEPREG_CONFIG_FILE, if any, then
// applies environment variables and validates the result
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv(ConfigFileEnv))
}

// LoadConfigFile is LoadConfig with an explicit file path; an empty path
// skips the file
func LoadConfigFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays every DEPREG_* variable that is set
func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("DEPREG_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.ShutdownTimeout = getEnvDuration("DEPREG_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.RateLimit.RequestsPerWindow = getEnvInt("DEPREG_RATE_LIMIT", c.Server.RateLimit.RequestsPerWindow)
	c.Server.RateLimit.BurstSize = getEnvInt("DEPREG_RATE_BURST", c.Server.RateLimit.BurstSize)

	c.Registry.DefaultHive = getEnv("DEPREG_DEFAULT_HIVE", c.Registry.DefaultHive)
	c.Registry.VersionCacheSize = getEnvInt("DEPREG_VERSION_CACHE_SIZE", c.Registry.VersionCacheSize)

	c.Audit.Enabled = getEnvBool("DEPREG_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.File.BasePath = getEnv("DEPREG_AUDIT_DIR", c.Audit.File.BasePath)
	c.Audit.Log = getEnvBool("DEPREG_AUDIT_LOG", c.Audit.Log)

	c.Observability.LogLevel = getEnv("DEPREG_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("DEPREG_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTel.Enabled = getEnvBool("DEPREG_OTEL_ENABLED", c.Observability.OTel.Enabled)
	c.Observability.OTel.Endpoint = getEnv("DEPREG_OTEL_ENDPOINT", c.Observability.OTel.Endpoint)
	c.Observability.OTel.ServiceName = getEnv("DEPREG_OTEL_SERVICE_NAME", c.Observability.OTel.ServiceName)
	c.Observability.OTel.Insecure = getEnvBool("DEPREG_OTEL_INSECURE", c.Observability.OTel.Insecure)
	c.Observability.OTel.SampleRatio = getEnvFloat("DEPREG_OTEL_SAMPLE_RATIO", c.Observability.OTel.SampleRatio)

	applyStorageEnv(&c.Storage)
}

// applyStorageEnv overlays storage configuration from environment
func applyStorageEnv(cfg *storage.Config) {
	// Storage type
	cfg.Type = getEnv("DEPREG_STORAGE_TYPE", cfg.Type)

	// Filesystem and SQLite config
	cfg.FilesystemRoot = getEnv("DEPREG_FILESYSTEM_ROOT", cfg.FilesystemRoot)
	cfg.SQLitePath = getEnv("DEPREG_SQLITE_PATH", cfg.SQLitePath)

	// PostgreSQL config
	cfg.PostgresURL = getEnv("DEPREG_POSTGRES_URL", cfg.PostgresURL)
	if maxConns := getEnvInt("DEPREG_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("DEPREG_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("DEPREG_SQL_TIMEOUT", 0); timeout > 0 {
		cfg.SQLTimeout = timeout
	}

	// Redis config
	cfg.RedisURL = getEnv("DEPREG_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("DEPREG_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("DEPREG_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	cfg.RedisMaxRetries = getEnvInt("DEPREG_REDIS_MAX_RETRIES", cfg.RedisMaxRetries)
	cfg.RedisPoolSize = getEnvInt("DEPREG_REDIS_POOL_SIZE", cfg.RedisPoolSize)
	cfg.RedisPrefix = getEnv("DEPREG_REDIS_PREFIX", cfg.RedisPrefix)

	// S3 config
	cfg.S3Endpoint = getEnv("DEPREG_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("DEPREG_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("DEPREG_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("DEPREG_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("DEPREG_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("DEPREG_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)
	cfg.S3Prefix = getEnv("DEPREG_S3_PREFIX", cfg.S3Prefix)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("listen address is required")
	}
	if c.Server.RateLimit.RequestsPerWindow < 0 || c.Server.RateLimit.BurstSize < 0 {
		return errors.New("rate limit cannot be negative")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return errors.New("filesystem root is required for filesystem storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres URL is required for postgres storage")
		}
		if c.Storage.PostgresMinConns > c.Storage.PostgresMaxConns {
			return errors.New("postgres min conns cannot exceed max conns")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return errors.New("redis URL is required for redis storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem, sqlite, postgres, redis, or s3)", c.Storage.Type)
	}

	if _, err := storage.ParseHive(c.Registry.DefaultHive); err != nil {
		return fmt.Errorf("default hive: %w", err)
	}
	if c.Registry.VersionCacheSize < 0 {
		return errors.New("version cache size cannot be negative")
	}

	if c.Audit.Enabled && c.Audit.File.BasePath == "" && !c.Audit.Log {
		return errors.New("audit requires a directory or log output")
	}

	if _, err := logrus.ParseLevel(c.Observability.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if err := c.Observability.OTel.Validate(); err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	return nil
}

// DefaultHive returns the parsed default hive
func (c *Config) DefaultHive() storage.Hive {
	hive, err := storage.ParseHive(c.Registry.DefaultHive)
	if err != nil {
		return storage.HiveMachine
	}
	return hive
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
