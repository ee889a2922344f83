package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines retry behavior for a specific operation type.
type RetryPolicy struct {
	MaxRetries   int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Maximum delay cap
	Multiplier   float64       // Exponential backoff multiplier (e.g., 2.0)
	Jitter       bool          // Perturb each delay by up to ±25%
}

// DefaultRetryPolicy returns the transient-error policy: 5 retries,
// 1s doubling to a 16s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// NoRetry is used for calls whose side effects must not be repeated.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 0}
}

// Delay computes min(initial * multiplier^attempt, max) without jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// TotalBackoff is the worst-case cumulative wait with jitter disabled:
// the sum of the capped exponential series over MaxRetries terms.
func (p RetryPolicy) TotalBackoff() time.Duration {
	var total time.Duration
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		total += p.Delay(attempt)
	}
	return total
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// RetryHook observes a retry about to be scheduled.
type RetryHook func(attempt int, delay time.Duration, err error)

// Retrier applies a RetryPolicy. The zero value is not usable; use NewRetrier.
type Retrier struct {
	Policy   RetryPolicy
	Classify func(error) RetryClass
	OnRetry  RetryHook

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// NewRetrier returns a Retrier using ClassifyError and real timers.
func NewRetrier(policy RetryPolicy) *Retrier {
	return &Retrier{
		Policy:   policy,
		Classify: ClassifyError,
		sleep:    sleepContext,
		rand:     rand.Float64,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jittered applies up to ±25% perturbation when the policy asks for it.
func (r *Retrier) jittered(d time.Duration) time.Duration {
	if !r.Policy.Jitter || r.rand == nil {
		return d
	}
	factor := 1 + (r.rand()*0.5 - 0.25)
	return time.Duration(float64(d) * factor)
}

// RetryWithPolicy executes fn, retrying transient failures with capped
// exponential backoff. Retries of one call are strictly sequential.
func RetryWithPolicy[T any](ctx context.Context, r *Retrier, fn RetryableFunc[T]) (T, error) {
	var zero T
	classify := r.Classify
	if classify == nil {
		classify = ClassifyError
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	attempt := 0
	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if classify(err) == RetryClassNonRetryable {
			return zero, err
		}

		if attempt >= r.Policy.MaxRetries {
			return zero, &RetryExhaustedError{Err: err, Attempts: attempt + 1, MaxAttempts: r.Policy.MaxRetries}
		}

		delay := r.jittered(r.Policy.Delay(attempt))
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, delay, err)
		}

		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("context cancelled during retry: %w", serr)
		}

		attempt++
	}
}

// Do is the untyped convenience form of RetryWithPolicy.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := RetryWithPolicy(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
