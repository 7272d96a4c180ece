package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tigerroll/recordbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/recordbatch/pkg/batch/core/config"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/recordbatch/pkg/batch/support/util/logger"
)

// RetryPolicy defines retry logic: which errors are retried, how often, and how long to wait.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the attempt following attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, including the first.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory generates instances of defaultRetryPolicy based on configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create creates a RetryPolicy from one retry section and the registered error type names
// that are retried regardless of their flags.
func (f *DefaultRetryPolicyFactory) Create(cfg config.RetryConfig, retryableErrors []string) RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	factor := cfg.Factor
	if factor < 1 {
		factor = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: time.Duration(cfg.InitialInterval) * time.Millisecond,
		maxInterval:     time.Duration(cfg.MaxInterval) * time.Millisecond,
		factor:          factor,
		retryableErrors: retryableErrors,
	}
}

// defaultRetryPolicy retries with exponential backoff.
type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	factor          float64
	retryableErrors []string
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry uses the BatchError retryable flag, the configured error type names,
// and finally exception.IsTemporary. Cancellation is never retried.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if be, ok := exception.AsBatchError(err); ok && be.IsRetryable() {
		return true
	}
	for _, typeName := range p.retryableErrors {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return exception.IsTemporary(err)
}

// GetBackoffInterval returns initialInterval * factor^(attempt-1), capped at maxInterval.
func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.initialInterval) * math.Pow(p.factor, float64(attempt-1))
	if p.maxInterval > 0 && d > float64(p.maxInterval) {
		return p.maxInterval
	}
	return time.Duration(d)
}

// Verify interfaces
var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Do runs op until it succeeds, returns a non-retryable error, or the policy's attempts are used up.
// The last error is returned. Waiting between attempts stops early when ctx is done.
// A port.RetryListener stored in ctx is told about every retry.
func Do(ctx context.Context, policy RetryPolicy, name string, op func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = op(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= policy.GetMaxAttempts() || !policy.ShouldRetry(err) {
			return err
		}

		wait := policy.GetBackoffInterval(attempt)
		logger.Warnf("%s failed (attempt %d/%d), retrying in %s: %v", name, attempt, policy.GetMaxAttempts(), wait, err)
		if l := port.GetRetryListenerFromContext(ctx); l != nil {
			l.OnRetry(ctx, name, attempt, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
