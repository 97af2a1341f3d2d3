package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultReadTimeout bounds read calls including their retries
	DefaultReadTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds submit-and-confirm writes including their retries
	DefaultWriteTimeout = 5 * time.Minute
)

// RetryPolicy controls the backoff loop of Run.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, at least 1
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt
	BaseDelay time.Duration

	// MaxDelay caps every wait, must be positive
	MaxDelay time.Duration

	// BackoffMultiplier grows the wait after each failed attempt
	BackoffMultiplier float64

	// RetryablePatterns are the Blockchain messages considered transient.
	// Empty means DefaultRetryablePatterns.
	RetryablePatterns []string
}

// DefaultRetryPolicy returns 3 attempts starting at 1s, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		RetryablePatterns: DefaultRetryablePatterns,
	}
}

// Validate checks the policy invariants.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay cannot be negative")
	}
	if p.MaxDelay <= 0 {
		return fmt.Errorf("max delay must be positive")
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	return nil
}

// Delay returns the wait after the given failed attempt (1-based):
// min(BaseDelay × BackoffMultiplier^(attempt-1), MaxDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Run executes op until it succeeds, fails with a non-retryable error or
// exhausts policy.MaxAttempts. Attempts never overlap: each one completes
// before the backoff wait and the next attempt start.
//
// The attempt sequence races a single overall timeout. On expiry Run
// returns a Network envelope wrapping ErrOperationTimeout. The context
// handed to op is cancelled at the same moment, which aborts go-ethereum
// RPC calls in flight, but a transaction the node has already accepted
// cannot be recalled and may still be mined. An op that ignores its
// context keeps running in the background until it returns; its result is
// discarded.
//
// Failures are returned as envelopes from the policy's classifier. When op
// itself returns an envelope that envelope is returned unchanged.
func Run[T any](ctx context.Context, log logrus.FieldLogger, policy RetryPolicy, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := policy.Validate(); err != nil {
		return zero, NewValidationError("retryPolicy", err.Error())
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		value, err := runAttempts(ctx, log, policy, NewClassifier(policy.RetryablePatterns), op)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		// An attempt failing because the budget ran out is a timeout.
		if out.err == nil || ctx.Err() == nil {
			return out.value, out.err
		}
	case <-ctx.Done():
		// Prefer a success that raced the deadline.
		select {
		case out := <-done:
			if out.err == nil {
				return out.value, nil
			}
		default:
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return zero, newEnvelope(KindNetwork, "operation cancelled", false, ctx.Err())
	}
	log.WithField("timeout", timeout.String()).Warn("Operation timed out")
	return zero, newEnvelope(KindNetwork, "Operation timeout", true, fmt.Errorf("%w: %v", ErrOperationTimeout, ctx.Err()))
}

func runAttempts[T any](ctx context.Context, log logrus.FieldLogger, policy RetryPolicy, classifier *Classifier, op func(context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.WithField("attempt", attempt).Info("Operation succeeded after retry")
			}
			return value, nil
		}

		env := classifier.Classify(err)
		if attempt >= policy.MaxAttempts || !env.Retryable {
			log.WithFields(logrus.Fields{
				"attempt":   attempt,
				"kind":      env.Kind,
				"retryable": env.Retryable,
				"error":     err,
			}).Debug("Operation failed, not retrying")
			return zero, env
		}

		delay := policy.Delay(attempt)
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"kind":    env.Kind,
			"delay":   delay.String(),
			"error":   err,
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, env
		case <-timer.C:
		}
	}
}
