package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// InFlightTracker counts requests currently being served so shutdown can
// wait for them.
type InFlightTracker struct {
	count atomic.Int64
}

// Increment marks a request as started.
func (t *InFlightTracker) Increment() {
	t.count.Add(1)
	observability.HTTPRequestsInFlight.Inc()
}

// Decrement marks a request as finished.
func (t *InFlightTracker) Decrement() {
	t.count.Add(-1)
	observability.HTTPRequestsInFlight.Dec()
}

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero blocks until the count reaches zero or ctx is done.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Middleware tracks every request passing through it.
func (t *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Increment()
		defer t.Decrement()
		next.ServeHTTP(w, r)
	})
}
