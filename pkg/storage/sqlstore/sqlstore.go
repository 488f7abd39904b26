// Package sqlstore implements storage.ProviderStore on SQLite or PostgreSQL.
//
// Provider rows live in dependency_providers and dependent rows in
// dependency_dependents. Both tables are keyed by hive and normalized key;
// the original key spelling is stored next to it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/platinummonkey/depreg/pkg/storage"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS dependency_providers (
		hive VARCHAR(16) NOT NULL,
		provider_key_norm VARCHAR(255) NOT NULL,
		provider_key VARCHAR(255) NOT NULL,
		version VARCHAR(64) NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		attributes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (hive, provider_key_norm)
	)`,
	`CREATE TABLE IF NOT EXISTS dependency_dependents (
		hive VARCHAR(16) NOT NULL,
		dependency_key_norm VARCHAR(255) NOT NULL,
		dependent_key_norm VARCHAR(255) NOT NULL,
		dependent_key VARCHAR(255) NOT NULL,
		min_version VARCHAR(64),
		max_version VARCHAR(64),
		attributes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (hive, dependency_key_norm, dependent_key_norm)
	)`,
}

const (
	selectProviderQuery = `
		SELECT provider_key, version, display_name, attributes
		FROM dependency_providers
		WHERE hive = ? AND provider_key_norm = ?`

	upsertProviderQuery = `
		INSERT INTO dependency_providers (hive, provider_key_norm, provider_key, version, display_name, attributes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (hive, provider_key_norm) DO UPDATE SET
			provider_key = excluded.provider_key,
			version = excluded.version,
			display_name = excluded.display_name,
			attributes = excluded.attributes`

	deleteProviderQuery = `
		DELETE FROM dependency_providers
		WHERE hive = ? AND provider_key_norm = ?`

	selectDependentsQuery = `
		SELECT dependent_key, min_version, max_version, attributes
		FROM dependency_dependents
		WHERE hive = ? AND dependency_key_norm = ?
		ORDER BY dependent_key_norm`

	upsertDependentQuery = `
		INSERT INTO dependency_dependents (hive, dependency_key_norm, dependent_key_norm, dependent_key, min_version, max_version, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hive, dependency_key_norm, dependent_key_norm) DO UPDATE SET
			dependent_key = excluded.dependent_key,
			min_version = excluded.min_version,
			max_version = excluded.max_version,
			attributes = excluded.attributes`

	deleteDependentQuery = `
		DELETE FROM dependency_dependents
		WHERE hive = ? AND dependency_key_norm = ? AND dependent_key_norm = ?`

	providerExistsQuery = `
		SELECT 1 FROM dependency_providers
		WHERE hive = ? AND provider_key_norm = ?`
)

// Store implements storage.ProviderStore using database/sql
type Store struct {
	db     *sql.DB
	driver Driver
}

// New wraps an open database and ensures the schema exists
func New(ctx context.Context, db *sql.DB, driver Driver) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storage.AccessError("create schema", err)
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	return rebind(s.driver, query)
}

// Name implements storage.ProviderStore.Name
func (s *Store) Name() string {
	if s.driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// ReadProvider implements storage.ProviderReader.ReadProvider
func (s *Store) ReadProvider(ctx context.Context, hive storage.Hive, key string) (*storage.Provider, error) {
	if err := storage.ValidateRow(hive, key); err != nil {
		return nil, err
	}

	var p storage.Provider
	err := s.db.QueryRowContext(ctx, s.q(selectProviderQuery), string(hive), storage.NormalizeKey(key)).
		Scan(&p.Key, &p.Version, &p.DisplayName, &p.Attributes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
	} else if err != nil {
		return nil, storage.AccessError("read provider", err)
	}

	return &p, nil
}

// ReadProviderVersion implements storage.ProviderReader.ReadProviderVersion
func (s *Store) ReadProviderVersion(ctx context.Context, hive storage.Hive, key string) (string, error) {
	p, err := s.ReadProvider(ctx, hive, key)
	if err != nil {
		return "", err
	}
	return p.Version, nil
}

// EnumerateDependents implements storage.ProviderReader.EnumerateDependents.
// The query runs when iteration starts and its rows are read before the
// first value is yielded, so no connection is held while the caller works.
func (s *Store) EnumerateDependents(ctx context.Context, hive storage.Hive, key string) iter.Seq2[storage.Dependent, error] {
	return func(yield func(storage.Dependent, error) bool) {
		if err := storage.ValidateRow(hive, key); err != nil {
			yield(storage.Dependent{}, err)
			return
		}

		deps, err := s.listDependents(ctx, hive, key)
		if err != nil {
			yield(storage.Dependent{}, err)
			return
		}

		for _, dep := range deps {
			if !yield(dep, nil) {
				return
			}
		}
	}
}

func (s *Store) listDependents(ctx context.Context, hive storage.Hive, key string) ([]storage.Dependent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(selectDependentsQuery), string(hive), storage.NormalizeKey(key))
	if err != nil {
		return nil, storage.AccessError("list dependents", err)
	}
	defer rows.Close()

	var deps []storage.Dependent
	for rows.Next() {
		var (
			d          storage.Dependent
			minVersion sql.NullString
			maxVersion sql.NullString
		)
		if err := rows.Scan(&d.Key, &minVersion, &maxVersion, &d.Attributes); err != nil {
			return nil, storage.AccessError("scan dependent", err)
		}
		d.MinVersion = minVersion.String
		d.MaxVersion = maxVersion.String
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.AccessError("list dependents", err)
	}

	return deps, nil
}

// WriteProvider implements storage.ProviderWriter.WriteProvider
func (s *Store) WriteProvider(ctx context.Context, hive storage.Hive, p storage.Provider) error {
	if err := storage.ValidateRow(hive, p.Key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q(upsertProviderQuery),
		string(hive),
		storage.NormalizeKey(p.Key),
		p.Key,
		p.Version,
		p.DisplayName,
		int(p.Attributes),
	)
	if err != nil {
		return storage.AccessError("write provider", err)
	}
	return nil
}

// DeleteProvider implements storage.ProviderWriter.DeleteProvider
func (s *Store) DeleteProvider(ctx context.Context, hive storage.Hive, key string) error {
	if err := storage.ValidateRow(hive, key); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.q(deleteProviderQuery), string(hive), storage.NormalizeKey(key))
	if err != nil {
		return storage.AccessError("delete provider", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storage.AccessError("delete provider", err)
	}
	if n == 0 {
		return fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
	}
	return nil
}

// WriteDependent implements storage.ProviderWriter.WriteDependent
func (s *Store) WriteDependent(ctx context.Context, hive storage.Hive, dependencyKey string, d storage.Dependent) error {
	if err := storage.ValidateRow(hive, dependencyKey, d.Key); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q(upsertDependentQuery),
		string(hive),
		storage.NormalizeKey(dependencyKey),
		storage.NormalizeKey(d.Key),
		d.Key,
		nullString(d.MinVersion),
		nullString(d.MaxVersion),
		int(d.Attributes),
	)
	if err != nil {
		return storage.AccessError("write dependent", err)
	}
	return nil
}

// DeleteDependent implements storage.ProviderWriter.DeleteDependent
func (s *Store) DeleteDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) error {
	if err := storage.ValidateRow(hive, dependencyKey, dependentKey); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.q(deleteDependentQuery),
		string(hive),
		storage.NormalizeKey(dependencyKey),
		storage.NormalizeKey(dependentKey),
	)
	if err != nil {
		return storage.AccessError("delete dependent", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storage.AccessError("delete dependent", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, s.q(providerExistsQuery), string(hive), storage.NormalizeKey(dependencyKey)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("dependent %s of %s: %w", dependentKey, dependencyKey, storage.ErrNotFound)
	} else if err != nil {
		return storage.AccessError("read provider", err)
	}
	return nil
}

// HealthCheck implements storage.HealthChecker.HealthCheck
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storage.AccessError("ping database", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
