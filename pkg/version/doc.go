// Package version parses dotted numeric versions and matches them against
// inclusive version ranges.
//
// A version has at most four numeric components ("major.minor.build.revision").
// Missing trailing components are zero, so "1.2" and "1.2.0.0" compare equal.
//
//	ok, err := version.InRange("1.2.3.4", "1.0", "2.0")
//	if errors.Is(err, version.ErrInvalidFormat) {
//		// malformed candidate or bound
//	}
//
// An empty bound is unbounded in its direction.
package version
