// Package redisstore implements storage.ProviderStore on Redis.
//
// A provider row is a hash at <prefix>:<hive>:provider:<key> with the fields
// key, version, display_name and attributes. The dependents of a provider are
// one hash at <prefix>:<hive>:dependents:<key> mapping each normalized
// dependent key to its JSON encoded row. Keys are normalized.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/depreg/pkg/storage"
)

// Store implements storage.ProviderStore on a Redis server
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a Redis backed store from the storage configuration
func New(ctx context.Context, config storage.Config) (*Store, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, storage.AccessError("connect to redis", err)
	}

	return NewWithClient(client, config.RedisPrefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "depreg"
	}
	return &Store{client: client, prefix: prefix}
}

// Name implements storage.ProviderStore.Name
func (s *Store) Name() string {
	return "redis"
}

func (s *Store) providerKey(hive storage.Hive, key string) string {
	return fmt.Sprintf("%s:%s:provider:%s", s.prefix, hive, storage.NormalizeKey(key))
}

func (s *Store) dependentsKey(hive storage.Hive, key string) string {
	return fmt.Sprintf("%s:%s:dependents:%s", s.prefix, hive, storage.NormalizeKey(key))
}

// ReadProvider implements storage.ProviderReader.ReadProvider
func (s *Store) ReadProvider(ctx context.Context, hive storage.Hive, key string) (*storage.Provider, error) {
	if err := storage.ValidateRow(hive, key); err != nil {
		return nil, err
	}

	fields, err := s.client.HGetAll(ctx, s.providerKey(hive, key)).Result()
	if err != nil {
		return nil, storage.AccessError("read provider", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
	}

	attrs, err := strconv.Atoi(fields["attributes"])
	if err != nil {
		return nil, storage.AccessError("read provider", fmt.Errorf("corrupt attributes %q", fields["attributes"]))
	}

	return &storage.Provider{
		Key:         fields["key"],
		Version:     fields["version"],
		DisplayName: fields["display_name"],
		Attributes:  storage.Attributes(attrs),
	}, nil
}

// ReadProviderVersion implements storage.ProviderReader.ReadProviderVersion
func (s *Store) ReadProviderVersion(ctx context.Context, hive storage.Hive, key string) (string, error) {
	if err := storage.ValidateRow(hive, key); err != nil {
		return "", err
	}

	version, err := s.client.HGet(ctx, s.providerKey(hive, key), "version").Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("provider %s: %w", key, storage.ErrNotFound)
	} else if err != nil {
		return "", storage.AccessError("read provider version", err)
	}
	return version, nil
}

// EnumerateDependents implements storage.ProviderReader.EnumerateDependents
func (s *Store) EnumerateDependents(ctx context.Context, hive storage.Hive, key string) iter.Seq2[storage.Dependent, error] {
	return func(yield func(storage.Dependent, error) bool) {
		if err := storage.ValidateRow(hive, key); err != nil {
			yield(storage.Dependent{}, err)
			return
		}

		rows, err := s.client.HGetAll(ctx, s.dependentsKey(hive, key)).Result()
		if err != nil {
			yield(storage.Dependent{}, storage.AccessError("list dependents", err))
			return
		}

		names := make([]string, 0, len(rows))
		for name := range rows {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			var dep storage.Dependent
			if err := json.Unmarshal([]byte(rows[name]), &dep); err != nil {
				yield(storage.Dependent{}, storage.AccessError("decode dependent", err))
				return
			}
			if !yield(dep, nil) {
				return
			}
		}
	}
}

// WriteProvider implements storage.ProviderWriter.WriteProvider
func (s *Store) WriteProvider(ctx context.Context, hive storage.Hive, p storage.Provider) error {
	if err := storage.ValidateRow(hive, p.Key); err != nil {
		return err
	}

	err := s.client.HSet(ctx, s.providerKey(hive, p.Key), map[string]interface{}{
		"key":          p.Key,
		"version":      p.Version,
		"display_name": p.DisplayName,
		"attributes":   strconv.Itoa(int(p.Attributes)),
	}).Err()
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

	n, err := s.client.Del(ctx, s.providerKey(hive, key)).Result()
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

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal dependent: %w", err)
	}

	if err := s.client.HSet(ctx, s.dependentsKey(hive, dependencyKey), storage.NormalizeKey(d.Key), data).Err(); err != nil {
		return storage.AccessError("write dependent", err)
	}
	return nil
}

// DeleteDependent implements storage.ProviderWriter.DeleteDependent
func (s *Store) DeleteDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) error {
	if err := storage.ValidateRow(hive, dependencyKey, dependentKey); err != nil {
		return err
	}

	n, err := s.client.HDel(ctx, s.dependentsKey(hive, dependencyKey), storage.NormalizeKey(dependentKey)).Result()
	if err != nil {
		return storage.AccessError("delete dependent", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := s.client.Exists(ctx, s.providerKey(hive, dependencyKey)).Result()
	if err != nil {
		return storage.AccessError("read provider", err)
	}
	if exists == 0 {
		return fmt.Errorf("dependent %s of %s: %w", dependentKey, dependencyKey, storage.ErrNotFound)
	}
	return nil
}

// HealthCheck implements storage.HealthChecker.HealthCheck
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage.AccessError("ping redis", err)
	}
	return nil
}

// Client returns the underlying Redis client
func (s *Store) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
