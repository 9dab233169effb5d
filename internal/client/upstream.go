package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/trail-transit-service/internal/circuitbreaker"
	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

const correlationHeader = "X-Correlation-ID"

// Breaker is the subset of circuitbreaker.CircuitBreaker the clients use.
type Breaker interface {
	Call(ctx context.Context, fn func() error) error
}

var _ Breaker = (*circuitbreaker.CircuitBreaker)(nil)

// guarded runs fn through b, or directly when b is nil.
func guarded(ctx context.Context, b Breaker, fn func() error) error {
	if b == nil {
		return fn()
	}
	return b.Call(ctx, fn)
}

// observe records one upstream call. status is a statusLabel value or "error"
// when no response was received.
func observe(upstream, status string, start time.Time) {
	observability.UpstreamCallsTotal.WithLabelValues(upstream, status).Inc()
	observability.UpstreamDuration.WithLabelValues(upstream, status).Observe(time.Since(start).Seconds())
}

// checkStatus maps a non-2xx HTTP status to a sentinel error.
func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAPIKey, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

func setCorrelationID(ctx context.Context, h http.Header) {
	if id := observability.CorrelationID(ctx); id != "" {
		h.Set(correlationHeader, id)
	}
}

// keyRedactedError hides an API key that leaked into a transport error, for
// example through the request URL printed by *url.Error.
type keyRedactedError struct {
	msg string
	err error
}

func (e *keyRedactedError) Error() string { return e.msg }
func (e *keyRedactedError) Unwrap() error { return e.err }

// redactKey returns err with every occurrence of key replaced. It returns err
// unchanged when the key does not appear.
func redactKey(err error, key string) error {
	if err == nil || key == "" {
		return err
	}
	msg := err.Error()
	red := strings.ReplaceAll(msg, key, "REDACTED")
	if esc := url.QueryEscape(key); esc != key {
		red = strings.ReplaceAll(red, esc, "REDACTED")
	}
	if red == msg {
		return err
	}
	return &keyRedactedError{msg: red, err: err}
}
