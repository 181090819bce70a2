package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Retry runs op until it succeeds, returns a fatal error, or the retry budget
// is spent. Errors that are neither recoverable nor fatal are retried.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := BackoffDelay(cfg, attempt)
			logger.Info("Retrying provider operation",
				slog.String("op", name),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("last_error", lastErr.Error()))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Provider operation succeeded after retry",
					slog.String("op", name),
					slog.Int("attempts", attempt+1))
			}
			return v, nil
		}
		lastErr = err

		if IsFatal(err) {
			logger.Error("Fatal provider error, not retrying",
				slog.String("op", name),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt+1))
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}

		logger.Warn("Provider operation failed",
			slog.String("op", name),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries))
	}

	return zero, fmt.Errorf("exhausted all retry attempts (%d): %w", cfg.MaxRetries, lastErr)
}

// BackoffDelay computes the delay before the given retry attempt (1-based).
func BackoffDelay(cfg RetryConfig, attempt int) time.Duration {
	// delay = initialDelay * (backoffFactor ^ (attempt-1))
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterPercent > 0 {
		jitterRange := delay * float64(cfg.JitterPercent)
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
	}

	if delay < 0 {
		delay = float64(cfg.InitialDelay)
	}
	return time.Duration(delay)
}
