// Package factory builds the configured ProviderStore backend.
package factory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/storage/redisstore"
	"github.com/platinummonkey/depreg/pkg/storage/s3store"
	"github.com/platinummonkey/depreg/pkg/storage/sqlstore"
)

// Storage types accepted in storage.Config.Type
const (
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
	TypeRedis      = "redis"
	TypeS3         = "s3"
)

// Open builds the backend named by cfg.Type and decorates it with
// instrumentation. Metrics may be nil.
func Open(ctx context.Context, cfg storage.Config, metrics *observability.Metrics, logger logrus.FieldLogger) (storage.ProviderStore, error) {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.WithField("backend", store.Name()).Info("Provider store opened")
	}

	return observability.NewInstrumentedStore(store, metrics, logger), nil
}

func openBackend(ctx context.Context, cfg storage.Config) (storage.ProviderStore, error) {
	var (
		store storage.ProviderStore
		err   error
	)

	switch cfg.Type {
	case TypeFilesystem, "":
		store, err = storage.NewFileSystemStore(cfg.FilesystemRoot)
	case TypeSQLite, TypePostgres:
		var sqlCfg sqlstore.Config
		if sqlCfg, err = sqlstore.ConfigFromStorage(cfg); err == nil {
			store, err = sqlstore.Open(ctx, sqlCfg)
		}
	case TypeRedis:
		store, err = redisstore.New(ctx, cfg)
	case TypeS3:
		store, err = s3store.New(ctx, cfg)
	default:
		err = fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
	}
	return store, nil
}
