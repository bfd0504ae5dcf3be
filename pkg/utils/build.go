// Build information is injected with -ldflags, e.g.
//   go build -ldflags "-X github.com/nobletooth/objcache/pkg/utils.Version=v1.2.3 ..."
// Keep the variables in this file; the build scripts refer to them by path.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

var (
	TestMode   string // "true" for binaries built to run tests; turns invariants into panics.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	// Missing build info stays visible while the version remains a valid semantic version.
	if Version == "" {
		Version = "v0.0.0-unknown"
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
	if TestMode != "" {
		isTestMode, err := strconv.ParseBool(TestMode)
		if err != nil {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false.", "testMode", TestMode, "error", err)
		}
		IsTestMode = isTestMode
	}
}

// BuildInfo returns the build information as slog key-value pairs.
func BuildInfo() []any {
	return []any{"version", Version, "commit", Commit, "build", BuildTime, "uptime", time.Since(StartTime).String()}
}
