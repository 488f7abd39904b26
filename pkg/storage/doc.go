// Package storage provides the persisted key/value store behind the dependency
// provider registry.
//
// # Overview
//
// The store is hierarchical. Each hive (machine-wide or per-user) holds provider
// rows keyed by provider key, and every provider key may have dependent rows
// beneath it keyed by dependent key:
//
//	<hive>/<provider key>                         version, display name, attributes
//	<hive>/<provider key>/dependents/<dependent>  min version, max version, attributes
//
// Keys are case-insensitive and unique within a hive. Backends index rows by the
// normalized (lower-cased) key and return the spelling that was last written.
//
// # Interfaces
//
// The store is split into focused capabilities that compose into ProviderStore:
//
//   - ProviderReader: ReadProvider, ReadProviderVersion, EnumerateDependents
//   - ProviderWriter: WriteProvider, DeleteProvider, WriteDependent, DeleteDependent
//   - HealthChecker: HealthCheck
//
// All methods accept context.Context as the first parameter.
//
// # Backend Implementations
//
// FileSystemStore: one JSON file per row in a directory tree. Best for a single
// host, which is the common installer deployment.
//
//	store, err := storage.NewFileSystemStore("/var/lib/depreg")
//
// sqlstore.Store: SQLite or PostgreSQL through database/sql.
//
//	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: "registry.db"})
//
// redisstore.Store: provider rows as Redis hashes, for fleets sharing one registry.
//
//	store, err := redisstore.New(ctx, cfg)
//
// s3store.Store: one JSON object per row in an S3 bucket, for hosts that
// already share object storage.
//
//	store, err := s3store.New(ctx, cfg)
//
// factory.Open selects a backend from Config and wraps it with metrics and tracing.
//
// # Error Handling
//
// Every backend maps its failures onto the same sentinels so callers can branch
// with errors.Is:
//
//   - ErrNotFound: the provider or dependent row does not exist
//   - ErrInvalidKey, ErrInvalidHive: the request is malformed, nothing was touched
//   - ErrStoreAccess: the underlying store failed; abort the current operation
//
// # Concurrency
//
// The store is host-wide shared state and backends perform no cross-row locking.
// Callers serialize mutations of the same provider.
//
// # Related Packages
//
//   - pkg/dependencies: the registry built on ProviderStore
//   - pkg/storage/storagetest: conformance suite for backends
//   - pkg/observability: InstrumentedStore decorator
package storage
