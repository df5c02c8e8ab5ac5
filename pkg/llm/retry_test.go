package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicyNormalisesSettings(t *testing.T) {
	t.Run("explicit settings survive", func(t *testing.T) {
		p := NewRetryPolicy(RetrySettings{
			Attempts:  5,
			BaseDelay: 50 * time.Millisecond,
			MaxDelay:  time.Second,
			Growth:    3,
		})
		require.Equal(t, 5, p.settings.Attempts)
		require.Equal(t, 50*time.Millisecond, p.settings.BaseDelay)
		require.Equal(t, time.Second, p.settings.MaxDelay)
		require.Equal(t, 3.0, p.settings.Growth)
	})

	t.Run("zero values fall back to defaults", func(t *testing.T) {
		p := NewRetryPolicy(RetrySettings{})
		require.Equal(t, 0, p.settings.Attempts)
		require.Equal(t, defaultBaseDelay, p.settings.BaseDelay)
		require.Equal(t, defaultMaxDelay, p.settings.MaxDelay)
		require.Equal(t, defaultGrowth, p.settings.Growth)
	})

	t.Run("nonsense values are clamped", func(t *testing.T) {
		p := NewRetryPolicy(RetrySettings{Attempts: -2, BaseDelay: -time.Second, Growth: 0.5})
		require.Equal(t, 0, p.settings.Attempts)
		require.Equal(t, defaultBaseDelay, p.settings.BaseDelay)
		require.Equal(t, defaultGrowth, p.settings.Growth)
	})
}

func TestExecuteFirstTrySuccess(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{Attempts: 3})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{Attempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &openai.Error{StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{Attempts: 2, BaseDelay: time.Millisecond})

	calls := 0
	lastErr := &openai.Error{StatusCode: http.StatusServiceUnavailable}
	err := p.Execute(context.Background(), func() error {
		calls++
		return lastErr
	})
	require.ErrorIs(t, err, lastErr)
	require.Equal(t, 3, calls)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{Attempts: 3})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return &openai.Error{StatusCode: http.StatusBadRequest}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteZeroAttemptsNeverRetries(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{})

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return &openai.Error{StatusCode: http.StatusTooManyRequests}
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestExecuteContextCancelsBackoff(t *testing.T) {
	p := NewRetryPolicy(RetrySettings{Attempts: 5, BaseDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	start := time.Now()
	err := p.Execute(ctx, func() error {
		calls++
		cancel()
		return &openai.Error{StatusCode: http.StatusTooManyRequests}
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
	require.Less(t, time.Since(start), time.Second, "cancellation must preempt the backoff sleep")
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"wrapped context canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &openai.Error{StatusCode: http.StatusInternalServerError}, true},
		{"bad gateway", &openai.Error{StatusCode: http.StatusBadGateway}, true},
		{"service unavailable", &openai.Error{StatusCode: http.StatusServiceUnavailable}, true},
		{"request timeout", &openai.Error{StatusCode: http.StatusRequestTimeout}, true},
		{"gateway timeout", &openai.Error{StatusCode: http.StatusGatewayTimeout}, true},
		{"bad request", &openai.Error{StatusCode: http.StatusBadRequest}, false},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, false},
		{"forbidden", &openai.Error{StatusCode: http.StatusForbidden}, false},
		{"net timeout", &timeoutNetError{timeout: true}, true},
		{"net outage", &timeoutNetError{}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
