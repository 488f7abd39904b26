// Package dict provides keyed string sets used to filter and deduplicate
// dependency records during a single registry operation.
//
// Two modes are supported. A StringSet owns its keys. An EmbeddedSet indexes
// elements of a caller-owned slice and derives each key with a caller supplied
// function, so no key is copied.
//
// Neither type is safe for concurrent use.
package dict

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexOutOfRange is returned when AddValue refers past the end of the arena
var ErrIndexOutOfRange = errors.New("index out of range")

// CaseSensitivity controls how keys are compared
type CaseSensitivity int

const (
	// CaseSensitive compares keys byte for byte
	CaseSensitive CaseSensitivity = iota
	// CaseInsensitive folds keys to lower case before hashing and comparing
	CaseInsensitive
)

func (c CaseSensitivity) normalize(key string) string {
	if c == CaseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

// StringSet is a set of owned string keys
type StringSet struct {
	cs    CaseSensitivity
	index map[string]int
	keys  []string
}

// NewStringSet creates a string set sized for expected keys
func NewStringSet(expected int, cs CaseSensitivity) *StringSet {
	if expected < 0 {
		expected = 0
	}
	return &StringSet{
		cs:    cs,
		index: make(map[string]int, expected),
		keys:  make([]string, 0, expected),
	}
}

// AddKey adds key to the set. Adding an existing key is a no-op.
func (s *StringSet) AddKey(key string) {
	norm := s.cs.normalize(key)
	if _, ok := s.index[norm]; ok {
		return
	}
	s.index[norm] = len(s.keys)
	s.keys = append(s.keys, key)
}

// Exists reports whether key is in the set
func (s *StringSet) Exists(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[s.cs.normalize(key)]
	return ok
}

// Get returns the key as it was first added
func (s *StringSet) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	i, ok := s.index[s.cs.normalize(key)]
	if !ok {
		return "", false
	}
	return s.keys[i], true
}

// Len returns the number of keys
func (s *StringSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in insertion order
func (s *StringSet) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Destroy releases the set's storage. The set is empty afterwards.
func (s *StringSet) Destroy() {
	s.index = make(map[string]int)
	s.keys = nil
}

// EmbeddedSet indexes elements of a caller-owned slice by a key derived from
// each element. The set stores only indices; the caller keeps the slice alive
// and must not reorder it while the set is in use.
type EmbeddedSet[T any] struct {
	cs    CaseSensitivity
	arena *[]T
	keyOf func(*T) string
	index map[string]int
}

// NewEmbeddedSet creates a set over *arena using keyOf to extract keys
func NewEmbeddedSet[T any](expected int, arena *[]T, keyOf func(*T) string, cs CaseSensitivity) *EmbeddedSet[T] {
	if expected < 0 {
		expected = 0
	}
	return &EmbeddedSet[T]{
		cs:    cs,
		arena: arena,
		keyOf: keyOf,
		index: make(map[string]int, expected),
	}
}

// AddValue indexes the element at position i of the arena. A later element
// with the same key replaces the earlier one.
func (s *EmbeddedSet[T]) AddValue(i int) error {
	if s.arena == nil || i < 0 || i >= len(*s.arena) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	key := s.keyOf(&(*s.arena)[i])
	s.index[s.cs.normalize(key)] = i
	return nil
}

// AddAll indexes every element currently in the arena
func (s *EmbeddedSet[T]) AddAll() {
	if s.arena == nil {
		return
	}
	for i := range *s.arena {
		key := s.keyOf(&(*s.arena)[i])
		s.index[s.cs.normalize(key)] = i
	}
}

// Exists reports whether an element with key has been added
func (s *EmbeddedSet[T]) Exists(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[s.cs.normalize(key)]
	return ok
}

// Get returns a pointer to the arena element stored under key
func (s *EmbeddedSet[T]) Get(key string) (*T, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[s.cs.normalize(key)]
	if !ok || i >= len(*s.arena) {
		return nil, false
	}
	return &(*s.arena)[i], true
}

// Len returns the number of indexed keys
func (s *EmbeddedSet[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.index)
}

// Destroy drops the index. The caller's arena is left untouched.
func (s *EmbeddedSet[T]) Destroy() {
	s.index = make(map[string]int)
	s.arena = nil
}
