package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlewis7127/specflow/internal/models"
)

func TestInvokeWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, perr := invokeWithRetry(context.Background(), quickRetry(3), zap.NewNop(), "work", func(context.Context) (string, *models.ProcessingError) {
		calls++
		return "ok", nil
	})

	require.Nil(t, perr)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestInvokeWithRetryNonRetryableAttemptedOnce(t *testing.T) {
	terminal := models.NewGenerationError("uploads/spec.txt", "malformed request", false)

	calls := 0
	_, perr := invokeWithRetry(context.Background(), quickRetry(3), zap.NewNop(), "work", func(context.Context) (string, *models.ProcessingError) {
		calls++
		return "", terminal
	})

	require.NotNil(t, perr)
	assert.Equal(t, 1, calls)
	// The terminal error comes back unchanged, not wrapped.
	assert.Same(t, terminal, perr)
}

func TestInvokeWithRetryRetryableExhaustsAllAttempts(t *testing.T) {
	calls := 0
	_, perr := invokeWithRetry(context.Background(), quickRetry(3), zap.NewNop(), "work", func(context.Context) (string, *models.ProcessingError) {
		calls++
		return "", models.NewGenerationError("uploads/spec.txt", "flaky", true)
	})

	require.NotNil(t, perr)
	assert.Equal(t, 3, calls)
	assert.Equal(t, models.ErrGeneration, perr.Kind)
	assert.False(t, perr.Retryable, "exhaustion yields a non-retryable error")
	assert.Contains(t, perr.Message, "after 3 attempts")
	assert.Equal(t, "3", perr.Details["attempts"])
}

func TestInvokeWithRetryRecoversOnLaterAttempt(t *testing.T) {
	calls := 0
	result, perr := invokeWithRetry(context.Background(), quickRetry(3), zap.NewNop(), "work", func(context.Context) (int, *models.ProcessingError) {
		calls++
		if calls < 3 {
			return 0, models.NewGenerationError("uploads/spec.txt", "try again", true)
		}
		return 42, nil
	})

	require.Nil(t, perr)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestExponentialBackoffSchedule(t *testing.T) {
	backoff := exponentialBackoff(2*time.Second, 2.0)

	for i, want := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		delay, stop := backoff.Next()
		assert.False(t, stop)
		assert.Equal(t, want, delay, "delay %d", i)
	}
}

func TestExponentialBackoffCustomRate(t *testing.T) {
	backoff := exponentialBackoff(time.Second, 1.5)

	delay, _ := backoff.Next()
	assert.Equal(t, time.Second, delay)
	delay, _ = backoff.Next()
	assert.Equal(t, 1500*time.Millisecond, delay)
}

func TestInvokeWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, perr := invokeWithRetry(ctx, RetryConfig{MaxAttempts: 5, InitialInterval: time.Minute, BackoffRate: 2.0}, zap.NewNop(), "work", func(context.Context) (string, *models.ProcessingError) {
		calls++
		cancel()
		return "", models.NewGenerationError("uploads/spec.txt", "flaky", true)
	})

	require.NotNil(t, perr)
	assert.Equal(t, 1, calls, "a cancelled context must not wait a minute for attempt two")
}
