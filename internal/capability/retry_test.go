package capability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonathan/dream-bridge/internal/httpapi"
	"github.com/stretchr/testify/assert"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestWithRetry_SucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(2), func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(2), func() error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	})
	assert.EqualError(t, err, "attempt 2")
	assert.Equal(t, 2, calls)
}

func TestWithRetry_NonRetryableError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return &httpapi.Error{Provider: "images", StatusCode: 400}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := WithRetry(ctx, fastRetry(3), func() error {
		calls++
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errors.New("connection reset")))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", &httpapi.Error{StatusCode: 503})))
	assert.False(t, IsRetryable(&httpapi.Error{StatusCode: 401}))
}
