package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmgilman/go/errors"
	_ "github.com/nobletooth/objcache/pkg/memcache" // Registers the cache flags.
	"github.com/nobletooth/objcache/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreFlags reverts the given flags to their current values once the test is done.
func restoreFlags(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		utils.SetTestFlag(t, name, flag.Lookup(name).Value.String())
	}
}

func flagValue(name string) string {
	return flag.Lookup(name).Value.String()
}

func TestApply(t *testing.T) {
	restoreFlags(t, "log_level", "log_add_source", "cache_layer", "cache_capacity", "cache_shard_count",
		"cache_tick_interval")

	require.NoError(t, Apply([]byte(`
		logging { log_level: "debug" log_add_source: true }
		cache {
			cache_layer: "lru"
			cache_capacity: 512
			cache_shard_count: 4
			cache_tick_interval { seconds: 2 nanos: 500000000 }
		}
	`)))
	assert.Equal(t, "debug", flagValue("log_level"))
	assert.Equal(t, "true", flagValue("log_add_source"))
	assert.Equal(t, "lru", flagValue("cache_layer"))
	assert.Equal(t, "512", flagValue("cache_capacity"))
	assert.Equal(t, "4", flagValue("cache_shard_count"))
	assert.Equal(t, "2.5s", flagValue("cache_tick_interval"))
}

func TestApply_UnsetFieldsKeepFlagValues(t *testing.T) {
	restoreFlags(t, "cache_layer", "cache_capacity")
	utils.SetTestFlag(t, "cache_capacity", "77")

	require.NoError(t, Apply([]byte(`cache { cache_layer: "clock" }`)))
	assert.Equal(t, "clock", flagValue("cache_layer"))
	assert.Equal(t, "77", flagValue("cache_capacity"))
	require.NoError(t, Apply(nil), "An empty config is valid")
}

func TestApply_Invalid(t *testing.T) {
	restoreFlags(t, "cache_capacity")
	testCases := []struct {
		name   string
		config string
	}{
		{name: "unknown_field", config: `cache { block_cache_ttl: 3 }`},
		{name: "wrong_type", config: `cache { cache_capacity: "many" }`},
		{name: "malformed", config: `cache {`},
		{name: "invalid_duration", config: `cache { cache_tick_interval { seconds: 1 nanos: -5 } }`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Apply([]byte(tc.config))
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
		})
	}
}

func TestLoadFile(t *testing.T) {
	restoreFlags(t, "cache_shard_count")
	path := filepath.Join(t.TempDir(), "config.txtpb")
	require.NoError(t, os.WriteFile(path, []byte(`cache { cache_shard_count: 3 }`), 0o644))

	require.NoError(t, LoadFile(path))
	assert.Equal(t, "3", flagValue("cache_shard_count"))

	err := LoadFile(filepath.Join(t.TempDir(), "missing.txtpb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}

func TestGetDefinedFlags(t *testing.T) {
	md, err := configDescriptor()
	require.NoError(t, err)
	definedFlags, err := getDefinedFlags(md)
	require.NoError(t, err)
	for _, name := range []string{"log_handler_type", "log_level", "log_add_source", "address", "cache_layer",
		"cache_capacity", "cache_shard_count", "cache_tick_interval"} {
		assert.Contains(t, definedFlags, name)
	}
	assert.NotContains(t, definedFlags, "logging", "Grouping messages are not flags")
	assert.NotContains(t, definedFlags, "config_file")
}

func TestCollectUnregisteredFlags(t *testing.T) {
	assert.Empty(t, CollectUnregisteredFlags())
}
