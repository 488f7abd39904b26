// Package records holds the growable result buffer that registry checks append
// dependency records to.
//
// A Store is owned by the caller for the duration of one logical operation,
// typically an install or uninstall transaction that runs several checks and
// merges their results. Every mutation that needs more room allocates a new
// backing array, copies into it and only then swaps it in, so a failed
// allocation never leaves a partially modified buffer behind.
package records

import (
	"errors"
	"fmt"
)

const (
	// DefaultGrowth is the number of slots added when a Store has to grow
	DefaultGrowth = 5

	// DefaultMaxCapacity bounds the default allocator
	DefaultMaxCapacity = 1 << 20
)

var (
	// ErrOutOfMemory is returned when the backing array cannot be grown
	ErrOutOfMemory = errors.New("out of memory")

	// ErrIndexOutOfRange is returned when an insert position is past the end
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Record is a (key, name) pair produced by a registry check
type Record struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// Allocator returns a zeroed backing array of exactly n records
type Allocator func(n int) ([]Record, error)

// LimitedAllocator allocates up to max records and fails beyond that
func LimitedAllocator(max int) Allocator {
	return func(n int) ([]Record, error) {
		if n < 0 || n > max {
			return nil, fmt.Errorf("%w: %d records exceeds limit of %d", ErrOutOfMemory, n, max)
		}
		return make([]Record, n), nil
	}
}

// Option configures a Store
type Option func(*Store)

// WithAllocator replaces the allocator used to grow the store
func WithAllocator(alloc Allocator) Option {
	return func(s *Store) {
		s.alloc = alloc
	}
}

// WithGrowth sets the growth chunk used by Append and Merge
func WithGrowth(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.growth = n
		}
	}
}

// Store is an ordered, growable sequence of records plus a count.
// The zero value is not usable; call NewStore.
type Store struct {
	buf    []Record // len(buf) is the capacity; slots past count are zero
	count  int
	growth int
	alloc  Allocator
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		growth: DefaultGrowth,
		alloc:  LimitedAllocator(DefaultMaxCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of records
func (s *Store) Len() int {
	return s.count
}

// Cap returns the number of allocated slots
func (s *Store) Cap() int {
	return len(s.buf)
}

// At returns the record at index i
func (s *Store) At(i int) Record {
	if i < 0 || i >= s.count {
		panic(fmt.Sprintf("records: index %d out of range [0,%d)", i, s.count))
	}
	return s.buf[i]
}

// Records returns a copy of the stored records in order
func (s *Store) Records() []Record {
	out := make([]Record, s.count)
	copy(out, s.buf[:s.count])
	return out
}

// Keys returns the record keys in order
func (s *Store) Keys() []string {
	out := make([]string, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[i].Key
	}
	return out
}

// EnsureCapacity makes room for count records. The store is reallocated
// only when count exceeds the current capacity, in which case the new
// capacity is count rounded up to a multiple of growth. Existing records are
// preserved and new slots are zero.
func (s *Store) EnsureCapacity(count, growth int) error {
	if count <= len(s.buf) {
		return nil
	}

	buf, err := s.grow(count, growth)
	if err != nil {
		return err
	}
	copy(buf, s.buf[:s.count])
	s.buf = buf
	return nil
}

// Insert places items at index, shifting the records at and after index
// towards the end. index may equal Len to append.
func (s *Store) Insert(index int, items []Record, growth int) error {
	if index < 0 || index > s.count {
		return fmt.Errorf("%w: insert at %d with %d records", ErrIndexOutOfRange, index, s.count)
	}
	if len(items) == 0 {
		return nil
	}

	need := s.count + len(items)
	if need <= len(s.buf) {
		copy(s.buf[index+len(items):need], s.buf[index:s.count])
		copy(s.buf[index:], items)
		s.count = need
		return nil
	}

	buf, err := s.grow(need, growth)
	if err != nil {
		return err
	}
	copy(buf, s.buf[:index])
	copy(buf[index:], items)
	copy(buf[index+len(items):], s.buf[index:s.count])

	s.buf = buf
	s.count = need
	return nil
}

// Append adds a record at the end
func (s *Store) Append(key, name string) error {
	return s.Insert(s.count, []Record{{Key: key, Name: name}}, s.growth)
}

// Merge appends every record of other, preserving order
func (s *Store) Merge(other *Store) error {
	if other == nil || other.count == 0 {
		return nil
	}
	return s.Insert(s.count, other.buf[:other.count], s.growth)
}

// Reset empties the store and releases its backing array
func (s *Store) Reset() {
	s.buf = nil
	s.count = 0
}

// Free is an alias for Reset
func (s *Store) Free() {
	s.Reset()
}

func (s *Store) grow(need, growth int) ([]Record, error) {
	if growth <= 0 {
		growth = s.growth
	}
	if growth <= 0 {
		growth = DefaultGrowth
	}

	capacity := need
	if rem := capacity % growth; rem != 0 {
		capacity += growth - rem
	}
	if capacity < need {
		return nil, fmt.Errorf("%w: capacity overflow", ErrOutOfMemory)
	}

	buf, err := s.alloc(capacity)
	if err != nil {
		if !errors.Is(err, ErrOutOfMemory) {
			err = fmt.Errorf("%w: %w", ErrOutOfMemory, err)
		}
		return nil, err
	}
	if len(buf) < capacity {
		return nil, fmt.Errorf("%w: allocator returned %d of %d records", ErrOutOfMemory, len(buf), capacity)
	}
	return buf, nil
}
