package client

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_retries_total",
		Help: "Total number of retry attempts by failure kind",
	}, []string{"kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_retry_exhausted_total",
		Help: "Total number of requests that failed after using their whole retry budget",
	}, []string{"kind"})
)

// RetryPolicy is the fixed retry budget of a single logical request.
// The delay between attempts is constant.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one (0 = one attempt).
	MaxRetries int

	// Delay is the wait between two attempts.
	Delay time.Duration
}

// DefaultRetryPolicy returns the default retry budget: 3 retries, 1s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      1 * time.Second,
	}
}

// attemptFunc performs one attempt. attempt starts at 0.
type attemptFunc func(ctx context.Context, attempt int) (*Result, *RequestError)

// retryFixed runs fn until it succeeds, fails with a non-retryable kind, or
// the policy is exhausted. The wait between attempts honours ctx; a
// cancellation there is reported as FailureAborted.
func retryFixed(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, fn attemptFunc) (*Result, *RequestError) {
	maxRetries := policy.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr *RequestError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, reqErr := fn(ctx, attempt)
		if reqErr == nil {
			res.Attempts = attempt + 1
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return res, nil
		}

		reqErr.Attempts = attempt + 1
		lastErr = reqErr

		if !shouldRetry(reqErr.Kind) {
			return nil, reqErr
		}

		if attempt >= maxRetries {
			break
		}

		retriesTotal.WithLabelValues(string(reqErr.Kind)).Inc()
		logger.Warn().
			Err(reqErr).
			Str("kind", string(reqErr.Kind)).
			Int("attempt", attempt+1).
			Dur("delay", policy.Delay).
			Msg("Attempt failed, retrying")

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug().
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry delay")
			return nil, &RequestError{
				Kind:     FailureAborted,
				Attempts: attempt + 1,
				URL:      reqErr.URL,
				Err:      ctx.Err(),
			}
		case <-timer.C:
		}
	}

	if maxRetries > 0 {
		retryExhaustedTotal.WithLabelValues(string(lastErr.Kind)).Inc()
		logger.Warn().
			Str("kind", string(lastErr.Kind)).
			Int("attempts", lastErr.Attempts).
			Msg("Retry attempts exhausted")
		lastErr.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, lastErr.Attempts, causeOf(lastErr))
	}
	return nil, lastErr
}

func causeOf(e *RequestError) error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind.sentinel()
}
