package objcache

import "github.com/jmgilman/go/errors"

var (
	// ErrInvalidArgument is returned when a required argument is missing or malformed.
	ErrInvalidArgument = errors.New(errors.CodeInvalidInput, "invalid argument")
	// ErrNotFound is returned by lookups and removals of keys that are not in the cache.
	ErrNotFound = errors.New(errors.CodeNotFound, "cache entry not found")
	// ErrRegionsNotSupported is returned by caches without the CacheRegions capability when given a region.
	ErrRegionsNotSupported = errors.New(errors.CodeNotImplemented, "cache regions are not supported")
)

// invalidArgument wraps ErrInvalidArgument with a description of what was wrong.
func invalidArgument(msg string) error {
	return errors.Wrap(ErrInvalidArgument, errors.CodeInvalidInput, msg)
}
