package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a provider or dependent row does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey is returned for malformed provider or dependent keys
	ErrInvalidKey = errors.New("invalid key")

	// ErrInvalidHive is returned for unknown hives
	ErrInvalidHive = errors.New("invalid hive")

	// ErrStoreAccess wraps I/O failures of the underlying store
	ErrStoreAccess = errors.New("store access failure")
)

// AccessError wraps err as a store access failure
func AccessError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreAccess, op, err)
}
