package llm

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/openai/openai-go"
)

// ErrorKind buckets a failed model call for reporting and cycle accounting.
type ErrorKind string

const (
	ErrorTimeout     ErrorKind = "timeout"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorAuth        ErrorKind = "auth_failed"
	ErrorUnavailable ErrorKind = "unavailable"
	ErrorOther       ErrorKind = "other"
)

// ClassifyError maps an error returned by the client into an ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorOther
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return ErrorRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrorAuth
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return ErrorTimeout
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return ErrorUnavailable
		default:
			return ErrorOther
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout
		}
		return ErrorUnavailable
	}

	return ErrorOther
}
