package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryConfig bounds Retry. Zero fields take the defaults below; a single
// attempt disables retrying.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	// Retryable reports whether a failed attempt is worth repeating. Nil
	// retries every error.
	Retryable func(error) bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

func (c RetryConfig) retryable(err error) bool {
	return c.Retryable == nil || c.Retryable(err)
}

// backoff is the pause after the given failed attempt, counted from 1.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	switch {
	case d > float64(c.MaxDelay):
		d = float64(c.MaxDelay)
	case d < 0:
		d = float64(c.InitialDelay)
	}
	return time.Duration(d)
}

// Retry runs fn until it returns a nil error, the attempts run out, ctx is
// done or cfg.Retryable rejects the error. A rejected error is returned
// unwrapped. When every attempt fails the last error is wrapped with the
// operation name and the attempt count.
func Retry[T any](ctx context.Context, name string, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("retry succeeded", "operation", name, "attempt", attempt)
			}
			return v, nil
		}
		if !cfg.retryable(err) {
			return zero, err
		}
		if attempt >= cfg.MaxAttempts {
			if cfg.MaxAttempts == 1 {
				return zero, err
			}
			return zero, fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		delay := cfg.backoff(attempt)
		slog.Warn("attempt failed, retrying", "operation", name, "attempt", attempt, "max_attempts", cfg.MaxAttempts, "error", err, "next_delay", delay)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("%s: retry abandoned: %w", name, ctx.Err())
		}
	}
}
