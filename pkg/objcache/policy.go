package objcache

import (
	"fmt"
	"math"
	"time"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/monitor"
)

// InfiniteAbsoluteExpiration means an entry never expires at an absolute point in time.
// The zero time.Time is treated the same way.
var InfiniteAbsoluteExpiration = time.Unix(math.MaxInt64>>1, 0).UTC()

// NoSlidingExpiration disables sliding expiration.
const NoSlidingExpiration time.Duration = 0

// Priority decides whether the cache may evict an entry to make room for others.
type Priority int

const (
	PriorityDefault      Priority = iota // May be evicted.
	PriorityNotRemovable                 // Never evicted; still expires and is still removed explicitly.
)

func (p Priority) String() string {
	switch p {
	case PriorityDefault:
		return "default"
	case PriorityNotRemovable:
		return "not_removable"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Policy describes how long an entry stays in the cache and who gets told when it leaves.
type Policy struct {
	AbsoluteExpiration time.Time     // Point in time at which the entry expires.
	SlidingExpiration  time.Duration // Idle time after which the entry expires; refreshed on every read.
	Priority           Priority
	// RemovedCallback is invoked after the entry has been removed, for any reason.
	RemovedCallback RemovedCallback
	// UpdateCallback is invoked when the entry expires or one of its monitors changes, and may provide a replacement.
	UpdateCallback UpdateCallback
	// ChangeMonitors remove the entry once any of them changes. The cache owns them once the entry is stored.
	ChangeMonitors []monitor.ChangeMonitor
}

// NewPolicy returns a policy that never expires and uses the default priority.
func NewPolicy() *Policy {
	return &Policy{
		AbsoluteExpiration: InfiniteAbsoluteExpiration,
		SlidingExpiration:  NoSlidingExpiration,
		Priority:           PriorityDefault,
	}
}

// HasAbsoluteExpiration returns false when the absolute expiration is unset or infinite.
func (p *Policy) HasAbsoluteExpiration() bool {
	return !p.AbsoluteExpiration.IsZero() && !p.AbsoluteExpiration.Equal(InfiniteAbsoluteExpiration)
}

// MaxSlidingExpiration is the longest sliding expiration a policy may ask for.
const MaxSlidingExpiration = 365 * 24 * time.Hour

// Validate checks the combinations a cache can't honor together.
func (p *Policy) Validate() error {
	switch {
	case p.RemovedCallback != nil && p.UpdateCallback != nil:
		return invalidArgument("a policy can't have both a removed and an update callback")
	case p.HasAbsoluteExpiration() && p.SlidingExpiration != NoSlidingExpiration:
		return invalidArgument("a policy can't have both an absolute and a sliding expiration")
	case p.SlidingExpiration < 0 || p.SlidingExpiration > MaxSlidingExpiration:
		return errors.WithContext(invalidArgument("sliding expiration is out of range"),
			"sliding_expiration", p.SlidingExpiration.String())
	case p.Priority != PriorityDefault && p.Priority != PriorityNotRemovable:
		return errors.WithContext(invalidArgument("unknown priority"), "priority", p.Priority.String())
	}
	for _, m := range p.ChangeMonitors {
		if m == nil {
			return invalidArgument("a policy can't carry nil change monitors")
		}
	}
	return nil
}
