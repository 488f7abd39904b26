package storage

import (
	"fmt"
	"strings"
	"unicode"
)

// maxNameLength is the longest file name most filesystems accept
const maxNameLength = 255

// MaxKeyLength is the longest accepted provider or dependent key in bytes,
// measured after normalization. It leaves room for a ".json" suffix.
const MaxKeyLength = maxNameLength - len(".json")

// ValidateKey checks that key can be used as a path component in every backend
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength || len(NormalizeKey(key)) > MaxKeyLength {
		return fmt.Errorf("%w: key longer than %d bytes", ErrInvalidKey, MaxKeyLength)
	}
	if key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		if r == '\\' || r == '/' || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	return nil
}

// NormalizeKey folds key for case-insensitive comparison. Backends index rows
// by the normalized key and keep the original spelling alongside.
func NormalizeKey(key string) string {
	return strings.ToLower(key)
}

// ValidateRow checks hive and keys before a backend touches durable state
func ValidateRow(hive Hive, keys ...string) error {
	if err := hive.Validate(); err != nil {
		return err
	}
	for _, key := range keys {
		if err := ValidateKey(key); err != nil {
			return err
		}
	}
	return nil
}
