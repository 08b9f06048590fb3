package embedder

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // Maximum number of attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
}

// DefaultRetryConfig returns the backoff used for provider API calls
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if c.MaxDelay > 0 {
		b = retry.WithCappedDuration(c.MaxDelay, b)
	}
	// MaxRetries counts attempts, go-retry counts retries after the first
	retries := uint64(0)
	if c.MaxRetries > 1 {
		retries = uint64(c.MaxRetries - 1)
	}
	return retry.WithMaxRetries(retries, b)
}

// permanentError marks failures that a retry cannot fix, such as 4xx responses
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent wraps err so retryWithBackoff returns it without another attempt
func permanent(err error) error {
	return &permanentError{err: err}
}

// retryWithBackoff runs fn until it succeeds, returns a permanent error, the
// attempts run out or ctx is done
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := retry.Do(ctx, config.backoff(), func(ctx context.Context) error {
		r, err := fn()
		if err == nil {
			result = r
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) || errors.Is(err, context.Canceled) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, err
	}
	return result, nil
}
