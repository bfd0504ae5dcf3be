package utils

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

// SetTestFlag overrides the flag `name` with `value` and restores the previous value when the test finishes.
// Unknown flags and unparsable values fail the test.
func SetTestFlag(t *testing.T, name, value string) {
	t.Helper()
	target := flag.Lookup(name)
	require.NotNil(t, target, "Flag %s not found", name)
	previous := target.Value.String()
	require.NoError(t, flag.Set(name, value))
	t.Cleanup(func() { require.NoError(t, flag.Set(name, previous)) })
}
