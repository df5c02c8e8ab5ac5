package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/require"
)

type timeoutNetError struct{ timeout bool }

var _ net.Error = (*timeoutNetError)(nil)

func (e *timeoutNetError) Error() string   { return "net error" }
func (e *timeoutNetError) Timeout() bool   { return e.timeout }
func (e *timeoutNetError) Temporary() bool { return false }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorOther},
		{"deadline", context.DeadlineExceeded, ErrorTimeout},
		{"wrapped deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), ErrorTimeout},
		{"rate limited", &openai.Error{StatusCode: http.StatusTooManyRequests}, ErrorRateLimited},
		{"unauthorized", &openai.Error{StatusCode: http.StatusUnauthorized}, ErrorAuth},
		{"forbidden", &openai.Error{StatusCode: http.StatusForbidden}, ErrorAuth},
		{"gateway timeout", &openai.Error{StatusCode: http.StatusGatewayTimeout}, ErrorTimeout},
		{"bad gateway", &openai.Error{StatusCode: http.StatusBadGateway}, ErrorUnavailable},
		{"server error", &openai.Error{StatusCode: http.StatusInternalServerError}, ErrorUnavailable},
		{"bad request", &openai.Error{StatusCode: http.StatusBadRequest}, ErrorOther},
		{"net timeout", &timeoutNetError{timeout: true}, ErrorTimeout},
		{"net down", &timeoutNetError{}, ErrorUnavailable},
		{"plain error", errors.New("boom"), ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}
