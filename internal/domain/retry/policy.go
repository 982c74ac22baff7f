// Package retry defines the retry policy applied at the responder gateway
// boundary. Retries happen in exactly one place; call sites never loop.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"concierge-server/internal/domain/chaterrors"
)

// Policy defines a retry strategy.
type Policy struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	JitterFactor float64       `json:"jitter_factor"` // 0.0-1.0
}

// ResponderPolicy is the default policy for responder invocations: up to 5
// attempts, exponential backoff doubling from 1s, capped at 30s.
func ResponderPolicy() Policy {
	return Policy{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
	}
}

// DeliveryPolicy is a shorter policy for carrier send calls; the task queue
// provides redelivery beyond it.
func DeliveryPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.2,
	}
}

// CalculateDelay calculates the exponential backoff delay for a given attempt.
func (p Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := p.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1) // -jitter to +jitter
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// ShouldRetry determines whether another attempt is allowed for an error.
// Only retryable severities are retried; auth and parse failures never are.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return chaterrors.Classify(err).IsRetryable()
}

// Execute runs fn with retries according to the policy.
func Execute(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := ExecuteWithResult(ctx, policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

// ExecuteWithResult runs fn with retries according to the policy.
func ExecuteWithResult[T any](ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		r, err := fn(ctx, attempt)
		if err == nil {
			return r, nil
		}
		lastErr = err

		if !policy.ShouldRetry(attempt, err) {
			break
		}

		delay := policy.CalculateDelay(attempt + 1)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return zero, lastErr
}
