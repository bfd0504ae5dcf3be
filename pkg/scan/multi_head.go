// The memory cache keeps its entries in more than one partition (the evictable layers and the pinned entries), yet
// enumerates them as a single key-ordered stream. MultiHead merges increasing sequences lazily with a min-heap of
// cursors, one cursor per sequence. When several sequences hold the same key, the sequence listed first wins and the
// others' values for that key are dropped.

package scan

import (
	"container/heap"
	"iter"

	"github.com/jmgilman/go/errors"
	"github.com/nobletooth/objcache/pkg/utils"
)

// cursor is the head of one sequence during a merge.
type cursor[K any, V any] struct {
	head     utils.Pair[K, V]
	priority int // Index of the sequence; lower wins on equal keys.
	next     func() (utils.Pair[K, V], bool)
}

// cursorHeap orders cursors by their head key, then by priority.
type cursorHeap[K any, V any] struct { // Implements heap.Interface.
	compare utils.CompareFn[K]
	cursors []*cursor[K, V]
}

var _ heap.Interface = (*cursorHeap[int, int])(nil)

func (h *cursorHeap[K, V]) Len() int { return len(h.cursors) }

func (h *cursorHeap[K, V]) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	if order := h.compare(a.head.Key, b.head.Key); order != 0 {
		return order < 0
	}
	return a.priority < b.priority
}

func (h *cursorHeap[K, V]) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *cursorHeap[K, V]) Push(x any) {
	c, ok := x.(*cursor[K, V])
	if !ok || c == nil {
		utils.RaiseInvariant("multi_head", "pushed_invalid_cursor", "An invalid cursor was pushed to the merge heap.")
		return
	}
	h.cursors = append(h.cursors, c)
}

func (h *cursorHeap[K, V]) Pop() any {
	last := h.cursors[len(h.cursors)-1]
	h.cursors[len(h.cursors)-1] = nil
	h.cursors = h.cursors[:len(h.cursors)-1]
	return last
}

// advance moves the top cursor to its next element, dropping the cursor once its sequence is exhausted.
func (h *cursorHeap[K, V]) advance() {
	top := h.cursors[0]
	if pair, ok := top.next(); ok {
		top.head = pair
		heap.Fix(h, 0)
		return
	}
	heap.Pop(h)
}

// MultiHead merges increasing sequences into one increasing sequence with unique keys. On equal keys the value of
// the earliest sequence in `sequences` is kept. Nothing is pulled until the result is iterated, and the result may
// be iterated more than once if the inputs can.
func MultiHead[Seq iter.Seq[utils.Pair[K, V]], K any, V any](cmp utils.CompareFn[K], sequences []Seq) (Seq, error) {
	if cmp == nil {
		return nil, errors.New(errors.CodeInvalidInput, "expected a non-nil comparison function")
	}
	if len(sequences) == 0 {
		return nil, errors.New(errors.CodeInvalidInput, "expected non-empty sequences")
	}

	return func(yield func(utils.Pair[K, V]) bool) {
		h := &cursorHeap[K, V]{compare: cmp, cursors: make([]*cursor[K, V], 0, len(sequences))}
		for priority, seq := range sequences {
			next, stop := iter.Pull(iter.Seq[utils.Pair[K, V]](seq))
			defer stop()
			if head, ok := next(); ok {
				h.cursors = append(h.cursors, &cursor[K, V]{head: head, priority: priority, next: next})
			}
		}
		heap.Init(h)

		for h.Len() > 0 {
			winner := h.cursors[0].head
			if !yield(winner) {
				return
			}
			// Skip the winner and every lower priority head with the same key.
			for h.Len() > 0 && cmp(h.cursors[0].head.Key, winner.Key) == 0 {
				h.advance()
			}
		}
	}, nil
}
