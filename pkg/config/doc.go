// Package config loads depreg configuration.
//
// Defaults are applied first, then an optional YAML file named by
// DEPREG_CONFIG_FILE, then any DEPREG_* environment variables that are set.
// The merged result is validated before it is returned.
//
// # File Format
//
//	server:
//	  listen_addr: ":8080"
//	  shutdown_timeout: 30s
//	storage:
//	  type: sqlite
//	  sqlite_path: /var/lib/depreg/registry.db
//	registry:
//	  default_hive: machine
//	audit:
//	  enabled: true
//	  file:
//	    path: /var/log/depreg/audit
//	    rotate: true
//	observability:
//	  log_level: info
//	  metrics_enabled: true
//	  otel:
//	    enabled: true
//	    endpoint: localhost:4317
//	    sample_ratio: 0.1
//
// # Environment Variables
//
// Server and registry:
//
//	DEPREG_LISTEN_ADDR=":8080"
//	DEPREG_SHUTDOWN_TIMEOUT="30s"
//	DEPREG_RATE_LIMIT="0"              # requests per minute per client; 0 disables
//	DEPREG_RATE_BURST="0"
//	DEPREG_DEFAULT_HIVE="machine"      # machine or user
//	DEPREG_VERSION_CACHE_SIZE="512"
//
// Storage:
//
//	DEPREG_STORAGE_TYPE="filesystem"   # filesystem, sqlite, postgres, redis, s3
//	DEPREG_FILESYSTEM_ROOT="/var/lib/depreg"
//	DEPREG_SQLITE_PATH="/var/lib/depreg/registry.db"
//	DEPREG_POSTGRES_URL="postgres://localhost/depreg"
//	DEPREG_POSTGRES_MAX_CONNS="20"
//	DEPREG_POSTGRES_MIN_CONNS="2"
//	DEPREG_SQL_TIMEOUT="30s"        # sqlite and postgres
//	DEPREG_REDIS_URL="redis://localhost:6379"
//	DEPREG_REDIS_PASSWORD=""
//	DEPREG_REDIS_DB="0"
//	DEPREG_REDIS_PREFIX="depreg"
//	DEPREG_S3_BUCKET="installers"
//	DEPREG_S3_REGION="us-east-1"
//	DEPREG_S3_ENDPOINT="http://localhost:9000"
//	DEPREG_S3_USE_PATH_STYLE="true"
//	DEPREG_S3_ACCESS_KEY=""
//	DEPREG_S3_SECRET_KEY=""
//	DEPREG_S3_PREFIX="depreg"
//
// Audit:
//
//	DEPREG_AUDIT_ENABLED="false"
//	DEPREG_AUDIT_DIR="/var/log/depreg/audit"
//	DEPREG_AUDIT_LOG="false"          # also write events to the application log
//
// Observability:
//
//	DEPREG_LOG_LEVEL="info"            # debug, info, warn, error
//	DEPREG_METRICS_ENABLED="true"
//	DEPREG_OTEL_ENABLED="false"
//	DEPREG_OTEL_ENDPOINT="localhost:4317"
//	DEPREG_OTEL_SERVICE_NAME="depreg"
//	DEPREG_OTEL_INSECURE="true"
//	DEPREG_OTEL_SAMPLE_RATIO="1"
//
// # Reloading
//
// A Watcher reloads the file when it is written. The server applies the new
// log level; other settings need a restart.
package config
