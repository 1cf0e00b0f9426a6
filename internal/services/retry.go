package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

// RetryConfig bounds the retrying invoker. Delays follow
// InitialInterval × BackoffRate^(attempt-1).
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffRate     float64
}

// DefaultRetryConfig yields delays of 2s and 4s between three attempts.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		BackoffRate:     2.0,
	}
}

// exponentialBackoff is a go-retry Backoff with a configurable growth rate.
// The library's own NewExponential is pinned to doubling; stage retry
// intervals are part of the pipeline contract, so the rate stays explicit.
func exponentialBackoff(initial time.Duration, rate float64) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay := time.Duration(float64(initial) * math.Pow(rate, float64(attempt)))
		attempt++
		return delay, false
	})
}

// invokeWithRetry runs one stage's unit of work under bounded exponential
// backoff. A non-retryable ProcessingError is returned unchanged after a
// single attempt. Exhausting all attempts returns a synthesized
// ProcessingError wrapping the last failure, marked non-retryable since no
// outer retry exists. Sleeps respect ctx and never block other executions.
func invokeWithRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, name string, work func(context.Context) (T, *models.ProcessingError)) (T, *models.ProcessingError) {
	var zero, result T
	var lastErr *models.ProcessingError

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), exponentialBackoff(cfg.InitialInterval, cfg.BackoffRate))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, perr := work(ctx)
		if perr != nil {
			lastErr = perr
			logger.Warn("Unit of work failed.",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Bool("retryable", perr.Retryable),
				zap.Error(perr))
			if !perr.Retryable {
				return perr
			}
			return retry.RetryableError(perr)
		}
		result = out
		return nil
	})
	if err == nil {
		return result, nil
	}

	if lastErr == nil {
		// Context expired before any attempt recorded a failure.
		return zero, &models.ProcessingError{
			Kind:      models.ErrGeneration,
			Message:   fmt.Sprintf("%s aborted: %v", name, err),
			Timestamp: time.Now().UTC(),
			Retryable: false,
		}
	}
	if !lastErr.Retryable {
		return zero, lastErr
	}

	wrapped := &models.ProcessingError{
		Kind:      lastErr.Kind,
		Message:   fmt.Sprintf("%s failed after %d attempts: %s", name, attempt, lastErr.Message),
		Timestamp: time.Now().UTC(),
		Key:       lastErr.Key,
		Retryable: false,
		Details:   map[string]string{"attempts": fmt.Sprintf("%d", attempt)},
	}
	for k, v := range lastErr.Details {
		wrapped.Details[k] = v
	}
	return zero, wrapped
}
