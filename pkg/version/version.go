package version

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxComponents is the number of numeric components in a version
const MaxComponents = 4

// Version is a parsed four component version
type Version [MaxComponents]uint32

// Parse parses a dotted numeric version such as "1.2.3.4"
func Parse(s string) (Version, error) {
	var v Version
	if s == "" {
		return v, fmt.Errorf("%w: empty version", ErrInvalidFormat)
	}

	parts := strings.Split(s, ".")
	if len(parts) > MaxComponents {
		return v, fmt.Errorf("%w: %q has more than %d components", ErrInvalidFormat, s, MaxComponents)
	}

	for i, part := range parts {
		if part == "" || !isDigits(part) {
			return v, fmt.Errorf("%w: %q component %d is not numeric", ErrInvalidFormat, s, i+1)
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return v, fmt.Errorf("%w: %q component %d out of range", ErrInvalidFormat, s, i+1)
		}
		v[i] = uint32(n)
	}

	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or 1 comparing a to b component by component
func Compare(a, b Version) int {
	for i := 0; i < MaxComponents; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// Compare compares v to other
func (v Version) Compare(other Version) int {
	return Compare(v, other)
}

// String renders all four components
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Range is an inclusive version range. A nil bound is unbounded.
type Range struct {
	Min *Version
	Max *Version
}

// ParseRange parses the bounds of a range; empty strings are unbounded
func ParseRange(min, max string) (Range, error) {
	return DefaultMatcher.ParseRange(min, max)
}

// Contains reports whether v lies within the range
func (r Range) Contains(v Version) bool {
	if r.Min != nil && Compare(v, *r.Min) < 0 {
		return false
	}
	if r.Max != nil && Compare(v, *r.Max) > 0 {
		return false
	}
	return true
}

// String renders the range in interval notation
func (r Range) String() string {
	lo, hi := "*", "*"
	if r.Min != nil {
		lo = r.Min.String()
	}
	if r.Max != nil {
		hi = r.Max.String()
	}
	return "[" + lo + ", " + hi + "]"
}

// InRange reports whether candidate lies within [min, max]
func InRange(candidate, min, max string) (bool, error) {
	return DefaultMatcher.InRange(candidate, min, max)
}
