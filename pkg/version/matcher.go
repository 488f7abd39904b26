package version

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of parsed versions kept by DefaultMatcher
const DefaultCacheSize = 512

// DefaultMatcher is shared by the package level helpers
var DefaultMatcher = NewMatcher(DefaultCacheSize)

// Matcher parses versions through a bounded cache of previous results.
// Installers check the same handful of version strings repeatedly within one
// transaction, and parsing is a pure function of the input string.
type Matcher struct {
	cache *lru.Cache[string, Version]
}

// NewMatcher creates a matcher caching up to size parsed versions.
// A size below one disables caching.
func NewMatcher(size int) *Matcher {
	m := &Matcher{}
	if size > 0 {
		cache, err := lru.New[string, Version](size)
		if err == nil {
			m.cache = cache
		}
	}
	return m
}

// Parse parses s, consulting the cache first
func (m *Matcher) Parse(s string) (Version, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get(s); ok {
			return v, nil
		}
	}

	v, err := Parse(s)
	if err != nil {
		return v, err
	}

	if m.cache != nil {
		m.cache.Add(s, v)
	}
	return v, nil
}

// ParseRange parses range bounds; an empty bound is unbounded
func (m *Matcher) ParseRange(min, max string) (Range, error) {
	var r Range
	if min != "" {
		v, err := m.Parse(min)
		if err != nil {
			return r, err
		}
		r.Min = &v
	}
	if max != "" {
		v, err := m.Parse(max)
		if err != nil {
			return r, err
		}
		r.Max = &v
	}
	return r, nil
}

// InRange reports whether candidate lies within [min, max]
func (m *Matcher) InRange(candidate, min, max string) (bool, error) {
	v, err := m.Parse(candidate)
	if err != nil {
		return false, err
	}

	r, err := m.ParseRange(min, max)
	if err != nil {
		return false, err
	}

	return r.Contains(v), nil
}

// Len returns the number of cached versions
func (m *Matcher) Len() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Len()
}
