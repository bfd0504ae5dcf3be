// Serves an ObjectCache over the Redis protocol (RESP). Values are stored as strings in the default region.

package port

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/monitor"
	"github.com/nobletooth/objcache/pkg/objcache"
	"github.com/nobletooth/objcache/pkg/scan"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string // Upper-cased command name.
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection after writing if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeBulk       *string  // Writes a bulk string if set.
	writeArray      []string // Writes an array of bulk strings if non-nil.
	writeString     string   // Writes a simple string otherwise.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeBulk: &s}
}

func writeRedisArray(values []string) redisOutput {
	if values == nil {
		values = []string{}
	}
	return redisOutput{writeArray: values}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func writeRedisErrorf(format string, args ...any) redisOutput {
	msg := "ERR " + fmt.Sprintf(format, args...)
	return redisOutput{err: &msg}
}

func wrongArity(command string) redisOutput {
	return writeRedisErrorf("wrong number of arguments for '%s' command", strings.ToLower(command))
}

// redisWriter is the part of redcon.Conn the outputs are written to.
type redisWriter interface {
	WriteError(msg string)
	WriteString(str string)
	WriteBulkString(bulk string)
	WriteInt(num int)
	WriteArray(count int)
	WriteNull()
}

// writeOutput writes the given output in its RESP form.
func writeOutput(w redisWriter, output redisOutput) {
	switch {
	case output.err != nil:
		w.WriteError(*output.err)
	case output.writeNil:
		w.WriteNull()
	case output.writeInt != nil:
		w.WriteInt(*output.writeInt)
	case output.writeBulk != nil:
		w.WriteBulkString(*output.writeBulk)
	case output.writeArray != nil:
		w.WriteArray(len(output.writeArray))
		for _, value := range output.writeArray {
			w.WriteBulkString(value)
		}
	default:
		w.WriteString(output.writeString)
	}
}

type redisHandler struct {
	cache objcache.ObjectCache
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(cache objcache.ObjectCache) (*redisHandler, error) {
	if cache == nil {
		return nil, errors.New(errors.CodeInvalidInput, "expected a non-nil object cache")
	}
	return &redisHandler{cache: cache}, nil
}

// valueString renders a cached value; values written by other clients of the cache may not be strings.
func valueString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch cmd.command {
	case "PING":
		switch len(cmd.args) {
		case 0:
			return writeRedisString("PONG")
		case 1:
			return writeRedisBulk(cmd.args[0])
		default:
			return wrongArity(cmd.command)
		}
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "GET":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command)
		}
		if value, err := rh.cache.Get(cmd.args[0], ""); errors.Is(err, objcache.ErrNotFound) {
			return writeRedisNil()
		} else if err != nil {
			return writeRedisError(err)
		} else {
			return writeRedisBulk(valueString(value))
		}
	case "SET":
		if len(cmd.args) < 2 {
			return wrongArity(cmd.command)
		}
		return rh.set(cmd.args[0], cmd.args[1], cmd.args[2:])
	case "SETDEP":
		if len(cmd.args) < 3 {
			return wrongArity(cmd.command)
		}
		return rh.setWithDependencies(cmd.args[0], cmd.args[1], cmd.args[2:])
	case "DEL":
		if len(cmd.args) < 1 {
			return wrongArity(cmd.command)
		}
		deletedCount := 0
		for _, key := range cmd.args {
			if _, err := rh.cache.Remove(key, ""); err == nil {
				deletedCount++
			} else if !errors.Is(err, objcache.ErrNotFound) {
				return writeRedisError(err)
			}
		}
		return writeRedisInt(deletedCount)
	case "EXISTS":
		if len(cmd.args) < 1 {
			return wrongArity(cmd.command)
		}
		existing := 0
		for _, key := range cmd.args {
			found, err := rh.cache.Contains(key, "")
			if err != nil {
				return writeRedisError(err)
			}
			if found {
				existing++
			}
		}
		return writeRedisInt(existing)
	case "DBSIZE":
		if len(cmd.args) != 0 {
			return wrongArity(cmd.command)
		}
		count, err := rh.cache.Count("")
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisInt(count)
	case "KEYS":
		if len(cmd.args) != 1 {
			return wrongArity(cmd.command)
		}
		matches, err := scan.MatchGlob(cmd.args[0], cacheKeys(rh.cache))
		if err != nil {
			return writeRedisError(err)
		}
		return writeRedisArray(slices.Collect(matches))
	default:
		return writeRedisErrorf("unknown command '%s'", strings.ToLower(cmd.command))
	}
}

// setOptions are the optional arguments of SET.
type setOptions struct {
	expiration  time.Duration // Zero means the entry never expires.
	onlyMissing bool          // NX
	onlyPresent bool          // XX
}

func parseSetOptions(args []string) (setOptions, errors.PlatformError) {
	var opts setOptions
	for i := 0; i < len(args); i++ {
		switch option := strings.ToUpper(args[i]); option {
		case "NX":
			opts.onlyMissing = true
		case "XX":
			opts.onlyPresent = true
		case "EX", "PX":
			if opts.expiration != 0 || i+1 >= len(args) {
				return opts, errors.New(errors.CodeInvalidInput, "syntax error")
			}
			i++
			unit := time.Second
			if option == "PX" {
				unit = time.Millisecond
			}
			amount, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil || amount <= 0 || amount > math.MaxInt64/int64(unit) {
				return opts, errors.New(errors.CodeInvalidInput, "invalid expire time in 'set' command")
			}
			opts.expiration = time.Duration(amount) * unit
		default:
			return opts, errors.New(errors.CodeInvalidInput, "syntax error")
		}
	}
	if opts.onlyMissing && opts.onlyPresent {
		return opts, errors.New(errors.CodeInvalidInput, "syntax error")
	}
	return opts, nil
}

func (rh *redisHandler) set(key, value string, args []string) redisOutput {
	opts, optsErr := parseSetOptions(args)
	if optsErr != nil {
		return writeRedisErrorf("%s", optsErr.Message())
	}
	policy := objcache.NewPolicy()
	if opts.expiration > 0 {
		policy.AbsoluteExpiration = time.Now().Add(opts.expiration)
	}
	item := objcache.NewItem(key, value, "")

	switch {
	case opts.onlyMissing:
		added, err := objcache.Add(rh.cache, item, policy)
		if err != nil {
			return writeRedisError(err)
		}
		if !added {
			return writeRedisNil()
		}
	case opts.onlyPresent:
		// Not atomic with the write; a concurrent DEL may win and the key is written anyway.
		found, err := rh.cache.Contains(key, "")
		if err != nil {
			return writeRedisError(err)
		}
		if !found {
			return writeRedisNil()
		}
		if err := rh.cache.Set(item, policy); err != nil {
			return writeRedisError(err)
		}
	default:
		if err := rh.cache.Set(item, policy); err != nil {
			return writeRedisError(err)
		}
	}
	return writeRedisString(RedisOk)
}

// setWithDependencies stores the value until any of the `dependencies` keys changes or leaves the cache. Missing
// dependencies count as already changed, so the value is dropped right away.
func (rh *redisHandler) setWithDependencies(key, value string, dependencies []string) redisOutput {
	dependencyMonitor, err := rh.cache.CreateCacheEntryChangeMonitor(dependencies, "")
	if err != nil {
		return writeRedisError(err)
	}
	policy := objcache.NewPolicy()
	policy.ChangeMonitors = []monitor.ChangeMonitor{dependencyMonitor}
	if err := rh.cache.Set(objcache.NewItem(key, value, ""), policy); err != nil {
		if disposeErr := dependencyMonitor.Dispose(); disposeErr != nil {
			slog.Warn("Failed to dispose dependency monitor.", "key", key, "error", disposeErr)
		}
		return writeRedisError(err)
	}
	return writeRedisString(RedisOk)
}

// cacheKeys streams the keys of the given cache.
func cacheKeys(cache objcache.ObjectCache) iter.Seq[string] {
	return func(yield func(string) bool) {
		for key := range cache.All() {
			if !yield(key) {
				return
			}
		}
	}
}

// toRedisCommand converts a redcon command; command names are case-insensitive.
func toRedisCommand(cmd redcon.Command) redisCommand {
	command := redisCommand{command: strings.ToUpper(string(cmd.Args[0])), args: make([]string, len(cmd.Args)-1)}
	for i := 1; i < len(cmd.Args); i++ {
		command.args[i-1] = string(cmd.Args[i])
	}
	return command
}

// RunRedisServer serves the given cache over the Redis protocol on --address until `ctx` is cancelled.
// The cache is owned by the caller and isn't closed here.
func RunRedisServer(ctx context.Context, cache objcache.ObjectCache) error {
	if *address == "" {
		return errors.New(errors.CodeInvalidConfig, "expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(cache)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			output := redisHandler.handle(toRedisCommand(cmd))
			writeOutput(conn, output)
			if output.closeConnection {
				if err := conn.Close(); err != nil {
					slog.Error("Failed to close connection.", "error", err)
				}
			}
		},
		/*accept*/ func(conn redcon.Conn) bool {
			slog.Debug("Accepted connection.", "remote", conn.RemoteAddr())
			return true
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	slog.Info("Serving object cache over the Redis protocol.", "address", *address, "cache", cache.Name())

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err := <-serverErrSignal:
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
