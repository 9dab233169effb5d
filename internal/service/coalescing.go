package service

import (
	"context"
	"sync"
	"time"
)

// flight is one in-progress computation that several callers may wait for.
type flight[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
}

// coalescer runs at most one computation per key at a time. Callers that miss
// the same cache key while a computation is running share its result instead
// of issuing their own upstream calls.
type coalescer[V any] struct {
	mu       sync.Mutex
	inFlight map[string]*flight[V]
	timeout  time.Duration
}

// newCoalescer returns a coalescer whose callers give up waiting after
// timeout. Zero means wait as long as the caller's context allows.
func newCoalescer[V any](timeout time.Duration) *coalescer[V] {
	return &coalescer[V]{
		inFlight: make(map[string]*flight[V]),
		timeout:  timeout,
	}
}

// Do returns the result of fn for key, starting fn only if no computation for
// key is running. shared reports whether the result came from another caller's
// computation. fn runs detached from the caller's cancellation so that its
// side effects complete for the remaining waiters.
func (c *coalescer[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (val V, shared bool, err error) {
	c.mu.Lock()
	f, exists := c.inFlight[key]
	if !exists {
		f = &flight[V]{done: make(chan struct{})}
		c.inFlight[key] = f
		go c.run(context.WithoutCancel(ctx), key, f, fn)
	}
	f.waiters++
	c.mu.Unlock()

	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case <-f.done:
		return f.val, exists, f.err
	case <-waitCtx.Done():
		var zero V
		return zero, exists, waitCtx.Err()
	}
}

func (c *coalescer[V]) run(ctx context.Context, key string, f *flight[V], fn func(context.Context) (V, error)) {
	f.val, f.err = fn(ctx)

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
	close(f.done)
}

// waiting returns the number of callers attached to the running computation for key.
func (c *coalescer[V]) waiting(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.inFlight[key]; ok {
		return f.waiters
	}
	return 0
}
