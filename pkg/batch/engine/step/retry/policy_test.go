package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
)

func TestBackoffInterval(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{
		MaxAttempts: 5, InitialInterval: 100, MaxInterval: 500, Factor: 2,
	}, nil)

	assert.Equal(t, 5, p.GetMaxAttempts())
	assert.Equal(t, 100*time.Millisecond, p.GetBackoffInterval(1))
	assert.Equal(t, 200*time.Millisecond, p.GetBackoffInterval(2))
	assert.Equal(t, 400*time.Millisecond, p.GetBackoffInterval(3))
	assert.Equal(t, 500*time.Millisecond, p.GetBackoffInterval(4))
}

func TestShouldRetry(t *testing.T) {
	quota := errors.New("quota exceeded")
	exception.RegisterErrorType("QuotaError", quota)
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 3}, []string{"QuotaError"})

	assert.False(t, p.ShouldRetry(nil))
	assert.True(t, p.ShouldRetry(exception.NewFetchFailure("a", errors.New("reset"))))
	assert.False(t, p.ShouldRetry(exception.NewDecodeFailure("a", "bad", nil)))
	assert.True(t, p.ShouldRetry(quota))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))
	assert.False(t, p.ShouldRetry(context.Canceled))
	assert.False(t, p.ShouldRetry(errors.New("access denied")))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 3, InitialInterval: 1, Factor: 1}, nil)

	calls := 0
	err := retry.Do(context.Background(), p, "list", func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return exception.NewEnumerationFailure("flaky", errors.New("timeout"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 2, InitialInterval: 1, Factor: 1}, nil)

	calls := 0
	failure := exception.NewSinkFailure("upload", errors.New("503"), true)
	err := retry.Do(context.Background(), p, "upload", func(ctx context.Context, attempt int) error {
		calls++
		return failure
	})
	assert.Same(t, failure, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 5, InitialInterval: 1}, nil)

	calls := 0
	err := retry.Do(context.Background(), p, "decode", func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("permission denied")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledWhileWaiting(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 5, InitialInterval: 60000}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry.Do(ctx, p, "fetch", func(ctx context.Context, attempt int) error {
			calls++
			return exception.NewFetchFailure("a", errors.New("timeout"))
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, exception.ErrFetch))
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry.Do did not return after cancellation")
	}
}

type retryRecorder struct {
	port.BasePipelineListener
	attempts []int
}

func (r *retryRecorder) OnRetry(ctx context.Context, operation string, attempt int, err error) {
	r.attempts = append(r.attempts, attempt)
}

func TestDo_NotifiesRetryListener(t *testing.T) {
	p := retry.NewDefaultRetryPolicyFactory().Create(config.RetryConfig{MaxAttempts: 3, InitialInterval: 1, Factor: 1}, nil)
	rec := &retryRecorder{}
	ctx := port.GetContextWithRetryListener(context.Background(), rec)

	err := retry.Do(ctx, p, "upload", func(ctx context.Context, attempt int) error {
		return exception.NewSinkFailure("boom", nil, true)
	})
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, rec.attempts)
}
