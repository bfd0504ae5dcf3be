// Objcache keeps several boolean facts about a single object (e.g. a change monitor) that are flipped by different
// goroutines without any lock. This module packs those facts into one 32-bit word and mutates it with
// compare-and-swap loops, so a reader never observes a partially updated word and exactly one writer wins each
// transition.

package atomicflag

import (
	"fmt"
	"sync/atomic"
)

// Bit is a mask of one or more flags inside a Register.
type Bit int32

// Register is a lock-free set of named bits. The zero value has every bit cleared and is ready to use.
// A Register must not be copied after first use; embed it by value in the struct that owns it.
type Register struct {
	data atomic.Int32
}

// Get returns true if all the bits in `bit` are set. It may observe a stale but consistent snapshot.
func (r *Register) Get(bit Bit) bool {
	return Bit(r.data.Load())&bit == bit
}

// Load returns the whole word as currently stored.
func (r *Register) Load() int32 {
	return r.data.Load()
}

// Set forces the given bit(s) to `value`, retrying until its compare-and-swap wins.
// Callers can't tell whether the bits were already in the requested state.
func (r *Register) Set(bit Bit, value bool) {
	for {
		oldData := r.data.Load()
		if r.data.CompareAndSwap(oldData, apply(oldData, bit, value)) {
			return
		}
	}
}

// SetIfChanged forces the given bit(s) to `value` and returns true only for the caller whose compare-and-swap
// actually changed the word. If the bits already hold `value`, it returns false without attempting a swap.
func (r *Register) SetIfChanged(bit Bit, value bool) /*changed*/ bool {
	for {
		oldData := r.data.Load()
		newData := apply(oldData, bit, value)
		if oldData == newData {
			return false
		}
		if r.data.CompareAndSwap(oldData, newData) {
			return true
		}
	}
}

// String renders the register as a binary word, mostly useful in logs.
func (r *Register) String() string {
	return fmt.Sprintf("%04b", r.data.Load())
}

func apply(data int32, bit Bit, value bool) int32 {
	if value {
		return data | int32(bit)
	}
	return data &^ int32(bit)
}
