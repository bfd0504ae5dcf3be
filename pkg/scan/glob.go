// KEYS commands filter the cache keys with glob patterns; the following module implements glob matching.

package scan

import (
	"iter"
	"strings"

	"github.com/jmgilman/go/errors"
	"v.io/v23/glob"
)

// ErrInvalidPattern is returned for patterns that can't be parsed.
var ErrInvalidPattern = errors.New(errors.CodeInvalidInput, "invalid glob pattern")

// MatchGlob filters the `keys` stream with the given glob `pattern`. Patterns are matched against whole keys, so
// path separators aren't supported.
func MatchGlob(pattern string, keys iter.Seq[string]) (iter.Seq[string], error) {
	if strings.Contains(pattern, "/") {
		return nil, errors.WithContext(
			errors.Wrap(ErrInvalidPattern, errors.CodeInvalidInput, "path separators are not supported"),
			"pattern", pattern)
	}
	parsedPattern, err := glob.Parse(pattern)
	if err != nil {
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeInvalidInput, "failed to parse glob pattern"), "pattern", pattern)
	}
	return func(yield func(string) bool) {
		for key := range keys {
			if parsedPattern.Head().Match(key) && !yield(key) {
				return
			}
		}
	}, nil
}
