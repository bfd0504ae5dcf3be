// Removal notifications are delivered on a single goroutine per cache. Layers report evictions while the cache may
// hold its own lock, and user callbacks are free to call back into the cache, so delivering them inline could
// deadlock.

package memcache

import (
	"log/slog"
	"sync"
)

// dispatcher runs queued tasks in order on its own goroutine. The queue is unbounded.
type dispatcher struct {
	mux     sync.Mutex
	queue   []func()
	closing bool
	wake    chan struct{} // Buffered; a pending signal means the queue may be non-empty.
	done    chan struct{} // Closed when the goroutine exits.
}

func newDispatcher() *dispatcher {
	d := &dispatcher{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go d.run()
	return d
}

// enqueue returns false once the dispatcher is closing.
func (d *dispatcher) enqueue(task func()) bool {
	d.mux.Lock()
	if d.closing {
		d.mux.Unlock()
		return false
	}
	d.queue = append(d.queue, task)
	d.mux.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mux.Lock()
		tasks, closing := d.queue, d.closing
		d.queue = nil
		d.mux.Unlock()

		for _, task := range tasks {
			d.runTask(task)
		}
		if len(tasks) > 0 {
			continue
		}
		if closing {
			return
		}
		<-d.wake
	}
}

// runTask keeps a panicking user callback from taking the dispatcher down.
func (d *dispatcher) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cache removal task panicked.", "panic", r)
		}
	}()
	task()
}

// close stops accepting tasks, runs the queued ones and waits for the goroutine to exit. Tasks enqueued by running
// tasks after close was called are dropped.
func (d *dispatcher) close() {
	d.mux.Lock()
	d.closing = true
	d.mux.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
