// Spins up the object cache server, compatible w/ the Redis protocol.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/nobletooth/objcache/pkg/config"
	"github.com/nobletooth/objcache/pkg/memcache"
	"github.com/nobletooth/objcache/pkg/port"
	"github.com/nobletooth/objcache/pkg/utils"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Object cache build info.", utils.BuildInfo()...)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cache, err := memcache.NewMemoryCache("default")
	if err != nil {
		slog.Error("Failed to create the memory cache.", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting object cache.", utils.BuildInfo()...)
	serverErr := port.RunRedisServer(ctx, cache)
	if closeErr := cache.Close(); closeErr != nil {
		slog.Error("Failed to close the memory cache.", "error", closeErr)
	}
	if serverErr != nil {
		slog.Error("Object cache server stopped.", "error", serverErr)
		os.Exit(1)
	}
}
