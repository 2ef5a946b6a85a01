package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Func is an operation that can be retried
type Func func(ctx context.Context) error

// IsRetryableFunc is a function that determines if an error is retryable
type IsRetryableFunc func(error) bool

// Options configures the retry behavior
type Options struct {
	// MaxRetries is the maximum number of retry attempts (not including the initial attempt)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffFactor is the factor by which the delay increases after each retry
	BackoffFactor float64

	// JitterFactor adds randomness to the delay (0.0 = no jitter, 1.0 = 100% jitter)
	JitterFactor float64

	// RetryableErrors lists message fragments that mark an error as retryable
	RetryableErrors []string

	// IsRetryableFunc is a function that determines if an error is retryable
	// If provided, this takes precedence over RetryableErrors
	IsRetryableFunc IsRetryableFunc

	// Logger is a function that logs retry attempts
	Logger func(format string, args ...interface{})
}

// DefaultOptions returns default retry options
func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx is done
func Do(ctx context.Context, fn Func, opts Options) error {
	var delay time.Duration

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	logf := opts.Logger
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logf("Retry successful on attempt %d", attempt+1)
			}
			return nil
		}

		if !isRetryable(err, opts) {
			return err
		}

		if attempt >= opts.MaxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		// Exponential backoff capped at MaxDelay
		if attempt == 0 {
			delay = opts.InitialDelay
		} else {
			delay = time.Duration(float64(delay) * opts.BackoffFactor)
			if opts.MaxDelay > 0 && delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		wait := delay
		if opts.JitterFactor > 0 {
			jitter := float64(delay) * opts.JitterFactor
			wait = time.Duration(float64(delay) + (rnd.Float64()*jitter*2 - jitter))
		}

		logf("Retry attempt %d after %v: %v", attempt+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryable reports whether the error message contains one of the retryable fragments
func IsRetryable(err error, retryableErrors []string) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	for _, fragment := range retryableErrors {
		if fragment != "" && strings.Contains(errMsg, strings.ToLower(fragment)) {
			return true
		}
	}

	return false
}

func isRetryable(err error, opts Options) bool {
	if opts.IsRetryableFunc != nil {
		return opts.IsRetryableFunc(err)
	}
	return IsRetryable(err, opts.RetryableErrors)
}
