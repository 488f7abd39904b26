package dependencies

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/version"
)

var (
	// ErrDependencyNotFound is returned when the dependency provider is not registered
	ErrDependencyNotFound = fmt.Errorf("dependency %w", storage.ErrNotFound)

	// ErrDependentNotFound is returned when neither the dependency nor the dependent is registered
	ErrDependentNotFound = fmt.Errorf("dependent %w", storage.ErrNotFound)
)

// IsNotFound reports whether err means a provider or dependent row is absent
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// IsInvalidFormat reports whether err was caused by a malformed version, key or hive
func IsInvalidFormat(err error) bool {
	return errors.Is(err, version.ErrInvalidFormat) ||
		errors.Is(err, storage.ErrInvalidKey) ||
		errors.Is(err, storage.ErrInvalidHive)
}

// IsStoreAccess reports whether err was caused by the underlying store
func IsStoreAccess(err error) bool {
	return errors.Is(err, storage.ErrStoreAccess)
}
