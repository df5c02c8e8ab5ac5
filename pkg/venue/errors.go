package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrSymbolNotFound indicates the requested symbol is not listed.
	ErrSymbolNotFound = errors.New("venue: symbol not found")
	// ErrHedgeMode indicates the account is configured for hedge (dual-side)
	// position mode, which the arena does not support.
	ErrHedgeMode = errors.New("venue: account is in hedge position mode, one-way mode required")
)

// APIError is a rejection returned by the venue itself (HTTP 4xx). It is
// never retried blindly; callers branch on the venue code.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue: api error status=%d code=%d: %s", e.Status, e.Code, e.Message)
}

// IsReject reports whether err is a venue-side rejection (4xx with a code).
func IsReject(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

// IsTransient reports whether err is worth a single retry: network failures
// and venue 5xx responses. Context cancellation and venue rejections are not
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
