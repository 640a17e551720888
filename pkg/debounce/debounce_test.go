package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) emit(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

func TestDebouncerEmitsLatestValue(t *testing.T) {
	rec := &recorder[string]{}
	d := New(20*time.Millisecond, rec.emit)
	defer d.Stop()

	d.Set("a")
	d.Set("ab")
	d.Set("abc")

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"abc"}, rec.snapshot())
}

func TestDebouncerSeparateBursts(t *testing.T) {
	rec := &recorder[int]{}
	d := New(10*time.Millisecond, rec.emit)
	defer d.Stop()

	d.Set(1)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 2*time.Millisecond)

	d.Set(2)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []int{1, 2}, rec.snapshot())
}

func TestDebouncerZeroQuietIsSynchronous(t *testing.T) {
	rec := &recorder[string]{}
	d := New(0, rec.emit)
	defer d.Stop()

	d.Set("now")
	assert.Equal(t, []string{"now"}, rec.snapshot())
}

func TestDebouncerFlush(t *testing.T) {
	rec := &recorder[string]{}
	d := New(time.Hour, rec.emit)
	defer d.Stop()

	d.Set("pending")
	d.Flush()
	assert.Equal(t, []string{"pending"}, rec.snapshot())

	// Nothing pending, flush is a no-op.
	d.Flush()
	assert.Len(t, rec.snapshot(), 1)
}

func TestDebouncerStopDropsPending(t *testing.T) {
	rec := &recorder[string]{}
	d := New(10*time.Millisecond, rec.emit)

	d.Set("doomed")
	d.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
