package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/trail-transit-service/internal/observability"
)

// Readiness values reported by /api/ready.
const (
	StatusReady        = "ready"
	StatusShuttingDown = "shutting-down"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the drain flag. Drain sets it on SIGTERM/SIGINT.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Status returns the readiness value for the current drain state.
func Status() string {
	if IsShuttingDown() {
		return StatusShuttingDown
	}
	return StatusReady
}

// Server is the part of *http.Server used while draining.
type Server interface {
	Shutdown(ctx context.Context) error
}

// InFlight counts requests still being served.
type InFlight interface {
	Count() int64
	WaitForZero(ctx context.Context, checkInterval time.Duration) error
}

// DrainConfig bounds each drain step.
type DrainConfig struct {
	ShutdownTimeout  time.Duration
	InFlightTimeout  time.Duration
	InFlightInterval time.Duration
}

// Drain runs the shutdown sequence: flag the process as draining, stop the
// server, wait for in-flight requests, then run closers in order. Every step
// runs even when an earlier one fails; the failures are joined.
func Drain(srv Server, inFlight InFlight, cfg DrainConfig, logger *zap.Logger, closers ...func() error) error {
	SetShuttingDown(true)
	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if inFlight != nil {
		n := inFlight.Count()
		logger.Info("waiting for in-flight requests", zap.Int64("count", n))
		observability.RecordShutdownInFlight(n)
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightTimeout)
		defer waitCancel()
		if err := inFlight.WaitForZero(waitCtx, cfg.InFlightInterval); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
			errs = append(errs, fmt.Errorf("in-flight wait: %w", err))
		}
	}

	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("close", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
