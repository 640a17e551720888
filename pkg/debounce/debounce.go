// Package debounce provides a delay-then-emit-latest utility: rapid
// successive values collapse into a single emission of the most recent
// value once the input has been quiet for the configured period.
package debounce

import (
	"sync"
	"time"
)

// Debouncer emits the latest value set during a quiet period. Each Set
// resets the timer; intermediate values are discarded. Independent
// Debouncer instances do not affect each other's timers.
type Debouncer[T any] struct {
	quiet time.Duration
	emit  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
}

// New creates a Debouncer that calls emit with the most recent value
// once no Set has arrived for the given quiet period.
func New[T any](quiet time.Duration, emit func(T)) *Debouncer[T] {
	return &Debouncer[T]{quiet: quiet, emit: emit}
}

// Set records a new value and restarts the quiet-period timer.
// A non-positive quiet period emits synchronously.
func (d *Debouncer[T]) Set(v T) {
	if d.quiet <= 0 {
		d.emit(v)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		v := d.pending
		d.mu.Unlock()
		d.emit(v)
	})
}

// Flush emits the pending value immediately, cancelling any running
// timer. It is a no-op if nothing is pending.
func (d *Debouncer[T]) Flush() {
	d.mu.Lock()
	if d.timer == nil {
		d.mu.Unlock()
		return
	}
	stopped := d.timer.Stop()
	v := d.pending
	d.timer = nil
	d.mu.Unlock()

	if stopped {
		d.emit(v)
	}
}

// Stop cancels any pending emission.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
