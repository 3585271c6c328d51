// Package readiness waits for a remote execution service to accept requests.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/deploycheck/internal/observability/metrics"
)

// MinInterval is the smallest delay allowed between two health checks.
const MinInterval = 50 * time.Millisecond

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 500 * time.Millisecond

// ErrServiceUnavailable is returned when the service did not become healthy in time.
var ErrServiceUnavailable = errors.New("service unavailable")

// HealthChecker is the part of the service handle the probe needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// endpointer is optionally implemented by checkers that know their URL.
type endpointer interface {
	Endpoint() string
}

// UnavailableError describes a failed wait.
type UnavailableError struct {
	Endpoint string
	Attempts int
	Elapsed  time.Duration
	LastErr  error
	// cause is the context error when the caller gave up first
	cause error
}

func (e *UnavailableError) Error() string {
	target := e.Endpoint
	if target == "" {
		target = "service"
	}
	msg := fmt.Sprintf("%s unavailable after %d attempt(s) in %s", target, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	if e.LastErr != nil {
		msg += " (last error: " + e.LastErr.Error() + ")"
	}
	return msg
}

// Unwrap exposes ErrServiceUnavailable and, on cancellation, the context error.
func (e *UnavailableError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrServiceUnavailable, e.cause}
	}
	return []error{ErrServiceUnavailable}
}

// Option configures WaitUntilReady
type Option func(*probe)

type probe struct {
	interval time.Duration
	logger   *slog.Logger
}

// WithInterval sets the delay between health checks. Values below MinInterval are raised to it.
func WithInterval(d time.Duration) Option {
	return func(p *probe) { p.interval = d }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *probe) { p.logger = l }
}

// WaitUntilReady calls svc.Health until it succeeds, timeout elapses or ctx is
// done. A non-positive timeout fails without contacting the service.
func WaitUntilReady(ctx context.Context, svc HealthChecker, timeout time.Duration, opts ...Option) error {
	p := probe{
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.interval < MinInterval {
		p.interval = MinInterval
	}

	var endpoint string
	if e, ok := svc.(endpointer); ok {
		endpoint = e.Endpoint()
	}

	waitCtx, cancel := context.WithTimeout(ctx, max(timeout, 0))
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	start := time.Now()
	attempts := 0
	var lastErr error

	for {
		// The first token is free, so the first check is immediate.
		if err := limiter.Wait(waitCtx); err != nil {
			// No attempt fits before the deadline; report at the deadline itself.
			<-waitCtx.Done()
			return p.unavailable(ctx, endpoint, attempts, time.Since(start), lastErr)
		}

		attempts++
		lastErr = svc.Health(waitCtx)
		if lastErr == nil {
			metrics.ReadinessAttempt("ok")
			p.logger.Info("service ready",
				"endpoint", endpoint,
				"attempts", attempts,
				"elapsed", time.Since(start).String(),
			)
			return nil
		}
		metrics.ReadinessAttempt("error")
		p.logger.Debug("service not ready",
			"endpoint", endpoint,
			"attempt", attempts,
			"error", lastErr,
		)

		if waitCtx.Err() != nil {
			return p.unavailable(ctx, endpoint, attempts, time.Since(start), lastErr)
		}
	}
}

func (p *probe) unavailable(parent context.Context, endpoint string, attempts int, elapsed time.Duration, lastErr error) error {
	metrics.ReadinessAttempt("unavailable")
	err := &UnavailableError{
		Endpoint: endpoint,
		Attempts: attempts,
		Elapsed:  elapsed,
		LastErr:  lastErr,
		cause:    parent.Err(),
	}
	p.logger.Warn("service unavailable",
		"endpoint", endpoint,
		"attempts", attempts,
		"elapsed", elapsed.String(),
		"error", lastErr,
	)
	return err
}
