// A change monitor watches something a cache entry depends on (a file, another entry, an invalidation signal) and
// tells exactly one interested party, exactly once, that the dependency changed. Three triggers race against each
// other from arbitrary goroutines:
//   - The concrete monitor detects a change and calls SignalChanged.
//   - A consumer (usually the cache) registers its callback with NotifyOnChanged.
//   - The owner tears the monitor down with Dispose, or a change does it automatically.
//
// Base arbitrates these triggers without a mutex. Four bits of an atomic register track the lifecycle
// (initialized, changed, invoked, disposed), and two single-assignment slots hold the callback and the first change
// payload. Each slot is updated by its own compare-and-swap, so the callback runs at most once, the release hook
// runs at most once and never before initialization, and a change that happens before registration or
// initialization is never lost.

package monitor

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/atomicflag"
	"github.com/nobletooth/objcache/pkg/utils"
)

const (
	initialized atomicflag.Bit = 1 << iota // The concrete monitor finished its constructor.
	changed                                // A dependency change was observed.
	invoked                                // The registered callback has been invoked.
	disposed                               // The release hook has run.
)

// OnChangedCallback is invoked once when the monitored dependency changes. `state` is the payload given to the
// first SignalChanged call and may be nil.
type OnChangedCallback func(state any)

// ChangeMonitor is the contract cache implementations rely on to get notified of dependency changes.
type ChangeMonitor interface {
	// UniqueID identifies the monitored dependency; two monitors over the same dependency state share an ID.
	UniqueID() string
	// NotifyOnChanged registers the single callback. If a change already happened, it is invoked right away.
	NotifyOnChanged(callback OnChangedCallback) error
	HasChanged() bool
	IsDisposed() bool
	// Dispose releases the monitor resources. It fails if the monitor hasn't finished its initialization.
	Dispose() error
}

// CacheEntryChangeMonitor watches a set of cache entries inside the same cache.
type CacheEntryChangeMonitor interface {
	ChangeMonitor
	CacheKeys() []string
	LastModified() time.Time // The latest modification time among the monitored entries.
	RegionName() string
}

// changeState boxes the change payload so that a nil payload is distinguishable from "not set yet".
type changeState struct{ value any }

// Base implements the change monitor lifecycle. Concrete monitors embed *Base, supply their release hook to NewBase
// and must call CompleteInitialization as the last step of their constructor.
type Base struct {
	kind     string // Labels the metrics of this monitor family, e.g. "file".
	flags    atomicflag.Register
	callback atomic.Pointer[OnChangedCallback] // Assigned at most once; nil means no callback yet.
	state    atomic.Pointer[changeState]       // Assigned at most once; nil means no change payload yet.
	release  func()                            // Runs exactly once after initialization; may be nil.
}

// NewBase is the constructor for Base. `release` is the concrete monitor cleanup hook; it runs exactly once, on the
// goroutine that wins the disposal, and never before CompleteInitialization.
func NewBase(kind string, release func()) *Base {
	return &Base{kind: kind, release: release}
}

// NotifyOnChanged registers the callback to be invoked when the dependency changes. Only the first registration is
// accepted. If a change was already signaled, the callback runs synchronously on the calling goroutine and receives
// the payload of that earlier change.
func (b *Base) NotifyOnChanged(callback OnChangedCallback) error {
	if callback == nil {
		return errors.Wrap(ErrInvalidArgument, errors.CodeInvalidInput, "expected a non-nil change callback")
	}
	if !b.callback.CompareAndSwap(nil, &callback) {
		return ErrCallbackAlreadyRegistered
	}
	if b.flags.Get(changed) {
		// The payload slot is already taken by the earlier change, so the nil payload here is discarded.
		b.SignalChanged(nil)
	}
	return nil
}

// SignalChanged is called by concrete monitors when the dependency changes. It may be called any number of times
// from any goroutine; only the first payload is kept and the callback runs at most once. Once the monitor is
// initialized, the change also disposes the monitor.
func (b *Base) SignalChanged(state any) {
	b.onChanged(state)
	if b.flags.Get(initialized) {
		b.dispose()
	}
}

// CompleteInitialization marks the end of the concrete monitor constructor. A change observed while constructing
// is resolved here by disposing the monitor right away.
func (b *Base) CompleteInitialization() {
	b.flags.Set(initialized, true)
	if b.flags.Get(changed) {
		deferredDisposals.WithLabelValues(b.kind).Inc()
		b.onChanged(nil)
		b.dispose()
	}
}

// Dispose releases the monitor. A registered callback that hasn't fired yet is invoked first, so consumers are
// always notified. Disposing before CompleteInitialization is a bug in the concrete monitor and fails.
func (b *Base) Dispose() error {
	b.onChanged(nil)
	if !b.flags.Get(initialized) {
		utils.RaiseInvariant("monitor", "dispose_before_initialization",
			"Change monitor was disposed before its initialization completed.", "kind", b.kind)
		return ErrNotInitialized
	}
	b.dispose()
	return nil
}

// HasChanged returns true once a dependency change has been signaled.
func (b *Base) HasChanged() bool {
	return b.flags.Get(changed)
}

// IsDisposed returns true once the release hook has been claimed.
func (b *Base) IsDisposed() bool {
	return b.flags.Get(disposed)
}

// IsInitialized returns true once CompleteInitialization has been called.
func (b *Base) IsInitialized() bool {
	return b.flags.Get(initialized)
}

func (b *Base) String() string {
	return fmt.Sprintf("monitor{kind: %s, flags: %s}", b.kind, b.flags.String())
}

// onChanged records the change and invokes the callback if this goroutine wins the invocation.
func (b *Base) onChanged(state any) {
	b.flags.Set(changed, true)
	b.state.CompareAndSwap(nil, &changeState{value: state})
	callback := b.callback.Load()
	if callback != nil && b.flags.SetIfChanged(invoked, true) {
		callbacksInvoked.WithLabelValues(b.kind).Inc()
		(*callback)(b.state.Load().value)
	}
}

// dispose runs the release hook on the single goroutine that flips the disposed bit.
func (b *Base) dispose() {
	if b.flags.Get(initialized) && b.flags.SetIfChanged(disposed, true) {
		disposals.WithLabelValues(b.kind).Inc()
		slog.Debug("Change monitor disposed.", "kind", b.kind)
		if b.release != nil {
			b.release()
		}
	}
}
