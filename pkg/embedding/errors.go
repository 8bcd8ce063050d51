package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorKind classifies embedding provider failures.
type ErrorKind string

const (
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindModel       ErrorKind = "model"
	ErrorKindRateLimit   ErrorKind = "rate_limit"
	ErrorKindUnavailable ErrorKind = "unavailable"
	ErrorKindCircuitOpen ErrorKind = "circuit_open"
	ErrorKindBadResponse ErrorKind = "bad_response"
	ErrorKindUnknown     ErrorKind = "unknown"
)

// Error is a classified embedding provider failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" HTTP %d", e.StatusCode)
	}
	msg += " " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError turns a go-openai error into an *Error.
// Status codes are read from the typed API errors first, message text second.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var embErr *Error
	if errors.As(err, &embErr) {
		return embErr
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrorKindUnavailable, Message: "request cancelled or timed out", Cause: err}
	}

	status := statusCode(err)
	lower := strings.ToLower(err.Error())

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || strings.Contains(lower, "invalid api key"):
		return &Error{Kind: ErrorKindAuth, Message: "authentication failed", StatusCode: status, Cause: err}
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return &Error{Kind: ErrorKindModel, Message: "model not found", StatusCode: status, Cause: err}
	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit"):
		return &Error{Kind: ErrorKindRateLimit, Message: "rate limited", Retryable: true, StatusCode: status, Cause: err}
	case status >= 500 || strings.Contains(lower, "connection refused") || strings.Contains(lower, "timeout"):
		return &Error{Kind: ErrorKindUnavailable, Message: "provider unavailable", Retryable: true, StatusCode: status, Cause: err}
	}
	return &Error{Kind: ErrorKindUnknown, Message: "embedding failed", StatusCode: status, Cause: err}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
