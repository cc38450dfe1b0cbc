// Package retrier applies the pipeline's retry policy to remote inference
// calls: empty responses and timeouts are retried with a linear backoff,
// everything else is returned on the first failure.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/metrics"
)

// Policy bounds the attempts for one operation.
type Policy struct {
	MaxAttempts int
	Step        time.Duration
	Stage       string
}

// Backoff is the wait after the failed attempt with zero-based index attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * p.Step
}

// ExhaustedError is returned when every attempt timed out.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("aborted after %d retries: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts run out. When the last failure was an empty response, fallback is
// returned with a nil error. label identifies the unit of work in logs.
func Do[T any](ctx context.Context, p Policy, label string, fallback T, op func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	calls := 0

	out, err := retry.DoWithData(
		func() (T, error) {
			calls++
			v, err := op(ctx)
			lastErr = err
			return v, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.RetryIf(ai.IsRetryable),
		// retry-go counts the failed attempts before asking for the delay, so
		// n is one ahead of the zero-based index OnRetry sees.
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.Backoff(int(n) - 1)
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= attempts {
				return
			}
			kind := ai.KindOf(err).String()
			metrics.IncRetry(p.Stage, kind)
			log.Warn().
				Str("stage", p.Stage).
				Str("unit", label).
				Str("kind", kind).
				Int("attempt", int(n)+1).
				Int("max_attempts", attempts).
				Dur("backoff", p.Backoff(int(n))).
				Err(err).
				Msgf("%s: %s response, retrying in %s", label, kind, p.Backoff(int(n)))
		}),
	)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fallback, ctxErr
	}
	if lastErr == nil {
		lastErr = err
	}

	switch ai.KindOf(lastErr) {
	case ai.KindEmpty:
		metrics.IncFallback(p.Stage)
		log.Warn().
			Str("stage", p.Stage).
			Str("unit", label).
			Int("attempts", calls).
			Msgf("%s: giving up after %d empty responses, using fallback", label, calls)
		return fallback, nil
	case ai.KindTimeout:
		return fallback, &ExhaustedError{Attempts: calls, Err: lastErr}
	default:
		return fallback, lastErr
	}
}

// IsExhausted reports whether err came from running out of timeout retries.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
