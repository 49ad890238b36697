// Package retry defines retry policies and backoff strategies.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
)

// Policy defines a retry strategy.
type Policy struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	InitialDelay    time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffStrategy BackoffType   `json:"backoff_strategy" yaml:"backoff_strategy"`
	JitterFactor    float64       `json:"jitter_factor" yaml:"jitter_factor"` // 0.0-1.0
}

// BackoffType identifies the backoff strategy.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffLinear      BackoffType = "linear"
	BackoffExponential BackoffType = "exponential"
)

// DefaultPolicy is used for object store writes.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		BackoffStrategy: BackoffExponential,
		JitterFactor:    0.25,
	}
}

// JobPolicy spaces out re-queued processing jobs.
func JobPolicy() Policy {
	return Policy{
		MaxRetries:      5,
		InitialDelay:    30 * time.Second,
		MaxDelay:        15 * time.Minute,
		BackoffStrategy: BackoffExponential,
		JitterFactor:    0.1,
	}
}

// NoRetryPolicy returns a policy that never retries.
func NoRetryPolicy() Policy {
	return Policy{}
}

// CalculateDelay calculates the delay for a given attempt.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	var delay time.Duration
	switch p.BackoffStrategy {
	case BackoffLinear:
		delay = p.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		delay = p.InitialDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	default:
		delay = p.InitialDelay
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.JitterFactor > 0 {
		jitter := float64(delay) * p.JitterFactor * (rand.Float64()*2 - 1)
		delay = time.Duration(float64(delay) + jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// ShouldRetry determines if another attempt is allowed for an error of the given severity.
func (p *Policy) ShouldRetry(attempt int, severity pipelineerrors.Severity) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	return severity.IsRetryable()
}

// Executor provides retry execution functionality.
type Executor struct {
	policy  Policy
	retryIf func(error) bool
	onRetry func(attempt int, err error)
}

// Option customises an Executor.
type Option func(*Executor)

// WithRetryIf limits retries to errors accepted by fn. By default only retryable pipeline errors are retried.
func WithRetryIf(fn func(error) bool) Option {
	return func(e *Executor) {
		e.retryIf = fn
	}
}

// WithOnRetry registers a hook called before each retry.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// NewExecutor creates a new retry executor with the given policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{policy: policy, retryIf: pipelineerrors.IsRetryable}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context, attempt int) error

// Execute runs fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
func (e *Executor) Execute(ctx context.Context, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= e.policy.MaxRetries || !e.retryIf(err) {
			break
		}
		if e.onRetry != nil {
			e.onRetry(attempt+1, err)
		}

		delay := e.policy.CalculateDelay(attempt + 1)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}

// ExecuteWithResult runs fn with retries and returns its result.
func ExecuteWithResult[T any](ctx context.Context, e *Executor, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context, attempt int) error {
		r, err := fn(ctx, attempt)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
