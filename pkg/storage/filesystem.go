package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

const (
	providerFile  = "provider.json"
	dependentsDir = "dependents"
)

// FileSystemStore implements ProviderStore as a directory tree:
//
//	<root>/<hive>/<provider>/provider.json
//	<root>/<hive>/<provider>/dependents/<dependent>.json
//
// Directory names are normalized keys; the JSON rows keep the original spelling.
type FileSystemStore struct {
	rootDir string
}

// NewFileSystemStore creates a new filesystem-based store
func NewFileSystemStore(rootDir string) (*FileSystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, AccessError("create root directory", err)
	}
	return &FileSystemStore{rootDir: rootDir}, nil
}

// Name implements ProviderStore.Name
func (s *FileSystemStore) Name() string {
	return "filesystem"
}

func (s *FileSystemStore) providerDir(hive Hive, key string) string {
	return filepath.Join(s.rootDir, string(hive), NormalizeKey(key))
}

func (s *FileSystemStore) dependentPath(hive Hive, dependencyKey, dependentKey string) string {
	return filepath.Join(s.providerDir(hive, dependencyKey), dependentsDir, NormalizeKey(dependentKey)+".json")
}

// ReadProvider implements ProviderReader.ReadProvider
func (s *FileSystemStore) ReadProvider(ctx context.Context, hive Hive, key string) (*Provider, error) {
	if err := ValidateRow(hive, key); err != nil {
		return nil, err
	}

	var provider Provider
	path := filepath.Join(s.providerDir(hive, key), providerFile)
	if err := readJSON(path, &provider); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("provider %s: %w", key, ErrNotFound)
		}
		return nil, AccessError("read provider", err)
	}

	return &provider, nil
}

// ReadProviderVersion implements ProviderReader.ReadProviderVersion
func (s *FileSystemStore) ReadProviderVersion(ctx context.Context, hive Hive, key string) (string, error) {
	provider, err := s.ReadProvider(ctx, hive, key)
	if err != nil {
		return "", err
	}
	return provider.Version, nil
}

// EnumerateDependents implements ProviderReader.EnumerateDependents
func (s *FileSystemStore) EnumerateDependents(ctx context.Context, hive Hive, key string) iter.Seq2[Dependent, error] {
	return func(yield func(Dependent, error) bool) {
		if err := ValidateRow(hive, key); err != nil {
			yield(Dependent{}, err)
			return
		}

		dir := filepath.Join(s.providerDir(hive, key), dependentsDir)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return
		} else if err != nil {
			yield(Dependent{}, AccessError("read dependents", err))
			return
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Dependent{}, err)
				return
			}

			var dependent Dependent
			if err := readJSON(filepath.Join(dir, entry.Name()), &dependent); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					// removed while enumerating
					continue
				}
				yield(Dependent{}, AccessError("read dependent", err))
				return
			}
			if !yield(dependent, nil) {
				return
			}
		}
	}
}

// WriteProvider implements ProviderWriter.WriteProvider
func (s *FileSystemStore) WriteProvider(ctx context.Context, hive Hive, provider Provider) error {
	if err := ValidateRow(hive, provider.Key); err != nil {
		return err
	}

	path := filepath.Join(s.providerDir(hive, provider.Key), providerFile)
	if err := writeJSON(path, provider); err != nil {
		return AccessError("write provider", err)
	}
	return nil
}

// DeleteProvider implements ProviderWriter.DeleteProvider
func (s *FileSystemStore) DeleteProvider(ctx context.Context, hive Hive, key string) error {
	if err := ValidateRow(hive, key); err != nil {
		return err
	}

	dir := s.providerDir(hive, key)
	if err := os.Remove(filepath.Join(dir, providerFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("provider %s: %w", key, ErrNotFound)
		}
		return AccessError("delete provider", err)
	}

	// Only succeeds when no dependents remain.
	_ = os.Remove(dir)
	return nil
}

// WriteDependent implements ProviderWriter.WriteDependent
func (s *FileSystemStore) WriteDependent(ctx context.Context, hive Hive, dependencyKey string, dependent Dependent) error {
	if err := ValidateRow(hive, dependencyKey, dependent.Key); err != nil {
		return err
	}

	if err := writeJSON(s.dependentPath(hive, dependencyKey, dependent.Key), dependent); err != nil {
		return AccessError("write dependent", err)
	}
	return nil
}

// DeleteDependent implements ProviderWriter.DeleteDependent
func (s *FileSystemStore) DeleteDependent(ctx context.Context, hive Hive, dependencyKey, dependentKey string) error {
	if err := ValidateRow(hive, dependencyKey, dependentKey); err != nil {
		return err
	}

	dir := s.providerDir(hive, dependencyKey)
	err := os.Remove(s.dependentPath(hive, dependencyKey, dependentKey))
	switch {
	case err == nil:
		_ = os.Remove(filepath.Join(dir, dependentsDir))
		_ = os.Remove(dir)
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return AccessError("delete dependent", err)
	}

	if _, err := os.Stat(filepath.Join(dir, providerFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("dependent %s of %s: %w", dependentKey, dependencyKey, ErrNotFound)
		}
		return AccessError("stat provider", err)
	}
	return nil
}

// HealthCheck implements HealthChecker.HealthCheck
func (s *FileSystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return AccessError("stat root directory", err)
	}
	if !info.IsDir() {
		return AccessError("stat root directory", fmt.Errorf("%s is not a directory", s.rootDir))
	}
	return nil
}

// Close implements ProviderStore.Close
func (s *FileSystemStore) Close() error {
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON replaces path atomically so readers never observe a partial row
func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write row: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename row: %w", err)
	}
	return nil
}
