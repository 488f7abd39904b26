package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/depreg/pkg/storage"
)

// Driver selects the SQL dialect
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
)

// Config holds database connection configuration
type Config struct {
	Driver      Driver
	DSN         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConfigFromStorage derives a connection config for the given backend type
func ConfigFromStorage(cfg storage.Config) (Config, error) {
	switch cfg.Type {
	case "sqlite":
		return Config{
			Driver:  DriverSQLite,
			DSN:     cfg.SQLitePath,
			Timeout: cfg.SQLTimeout,
		}, nil
	case "postgres":
		return Config{
			Driver:      DriverPostgres,
			DSN:         cfg.PostgresURL,
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.SQLTimeout,
			MaxLifetime: 1 * time.Hour,
			MaxIdleTime: 10 * time.Minute,
		}, nil
	default:
		return Config{}, fmt.Errorf("storage type %q is not a SQL backend", cfg.Type)
	}
}

// Open connects to the database, configures the pool and creates the schema
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	db, err := sql.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, storage.AccessError("open database", err)
	}

	configurePool(db, config)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, storage.AccessError("ping database", err)
	}

	store, err := New(ctx, db, config.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func configurePool(db *sql.DB, config Config) {
	if config.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection also keeps
		// ":memory:" databases alive for the lifetime of the store.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
		return
	}

	if config.MaxConns > 0 {
		db.SetMaxOpenConns(config.MaxConns)
	}
	if config.MinConns > 0 {
		db.SetMaxIdleConns(config.MinConns)
	}
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)
}

// rebind rewrites '?' placeholders into the driver's bind syntax
func rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
