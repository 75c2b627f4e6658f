package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrAgentNotFound   = fmt.Errorf("agent not found")
	ErrUnsupportedType = fmt.Errorf("unsupported agent type")
	ErrInvalidEndpoint = fmt.Errorf("invalid endpoint URL")

	// Transport / provider errors.
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrServerError = fmt.Errorf("provider server error")
	ErrTimeout     = fmt.Errorf("request timed out")

	// Offline queue errors.
	ErrOffline       = fmt.Errorf("network offline, message queued")
	ErrQueueNotFound = fmt.Errorf("queued message not found")

	// Credential store errors.
	ErrEncryption = fmt.Errorf("encryption operation failed")
	ErrDecryption = fmt.Errorf("decryption failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g. "Tester.Test")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error. Returns nil if err is nil,
// enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and for
// the UI to key user-facing messages on.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeAgentNotFound   ErrorCode = "AGENT_NOT_FOUND"
	CodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	CodeInvalidEndpoint ErrorCode = "INVALID_ENDPOINT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeServerError     ErrorCode = "SERVER_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeOffline         ErrorCode = "OFFLINE_QUEUED"
	CodeQueueNotFound   ErrorCode = "QUEUE_NOT_FOUND"
	CodeEncryption      ErrorCode = "ENCRYPTION"
	CodeDecryption      ErrorCode = "DECRYPTION"
)

var errorCodeMap = map[error]ErrorCode{
	ErrAgentNotFound:   CodeAgentNotFound,
	ErrUnsupportedType: CodeUnsupportedType,
	ErrInvalidEndpoint: CodeInvalidEndpoint,
	ErrAuthInvalid:     CodeAuthInvalid,
	ErrRateLimit:       CodeRateLimit,
	ErrServerError:     CodeServerError,
	ErrTimeout:         CodeTimeout,
	ErrOffline:         CodeOffline,
	ErrQueueNotFound:   CodeQueueNotFound,
	ErrEncryption:      CodeEncryption,
	ErrDecryption:      CodeDecryption,
}

// ErrorCodeOf returns the machine-parseable code for err, walking the
// error chain with errors.Is. Returns CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
