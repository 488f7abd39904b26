package version

import "errors"

var (
	// ErrInvalidFormat is returned when a version string cannot be parsed
	ErrInvalidFormat = errors.New("invalid version format")
)
