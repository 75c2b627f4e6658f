package usecase

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"

	"chatrelay/internal/domain"
)

// apiErrorPattern recovers the HTTP status from a transport error string
// when the sentinel chain is unavailable (e.g. an error that crossed a
// serialization boundary).
var apiErrorPattern = regexp.MustCompile(`API error (\d+):`)

// IsRetryable reports whether a failed request may be retried. Retries are
// reserved for faults that plausibly clear on their own: provider 5xx
// responses, our own deadline expiring, and transport-level timeouts.
// Client errors (4xx) reflect the request itself and repeat identically;
// a caller's cancellation means nobody is waiting for the answer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout) {
		return true
	}
	if errors.Is(err, domain.ErrServerError) {
		return true
	}
	if errors.Is(err, domain.ErrAuthInvalid) || errors.Is(err, domain.ErrRateLimit) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if status, ok := statusFromError(err); ok {
		return status >= 500
	}
	return false
}

// statusFromError extracts an HTTP status embedded in the error text.
func statusFromError(err error) (int, bool) {
	m := apiErrorPattern.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0, false
	}
	status, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, false
	}
	return status, true
}
