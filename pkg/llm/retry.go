package llm

import (
	"context"
	"errors"
	"time"
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 3 * time.Second
	defaultGrowth    = 2.0
)

// RetrySettings tunes the exponential backoff applied to transient gateway
// failures. Attempts counts retries after the first call; zero disables
// retrying entirely.
type RetrySettings struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Growth    float64
}

// RetryPolicy re-runs an operation on retryable failures with exponential
// backoff between attempts.
type RetryPolicy struct {
	settings RetrySettings
}

// NewRetryPolicy normalises settings and returns a usable policy.
func NewRetryPolicy(settings RetrySettings) *RetryPolicy {
	if settings.Attempts < 0 {
		settings.Attempts = 0
	}
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = defaultBaseDelay
	}
	if settings.MaxDelay <= 0 {
		settings.MaxDelay = defaultMaxDelay
	}
	if settings.Growth <= 1 {
		settings.Growth = defaultGrowth
	}
	return &RetryPolicy{settings: settings}
}

// Execute runs fn, retrying while the failure is retryable and attempts
// remain. Context cancellation wins over a pending backoff sleep.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	delay := p.settings.BaseDelay

	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= p.settings.Attempts || !retryable(err) {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * p.settings.Growth)
		if delay > p.settings.MaxDelay {
			delay = p.settings.MaxDelay
		}
	}
}

// retryable reports whether another attempt can plausibly succeed. Context
// errors never retry: the caller's budget is spent. Everything else follows
// the ClassifyError taxonomy. Rate limits, outages and transport timeouts
// retry; auth failures and unknown errors do not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch ClassifyError(err) {
	case ErrorRateLimited, ErrorUnavailable, ErrorTimeout:
		return true
	default:
		return false
	}
}
