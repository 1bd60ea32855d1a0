// Package errors defines the error taxonomy for model invocations. Types
// determine whether an operation is retried, degraded, or surfaced as fatal,
// enabling resilient handling of transient versus permanent failures.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType categorizes model invocation failures for retry classification.
type ErrorType string

const (
	// ErrorTypeUnauthorized indicates failed authentication or missing
	// permissions (fatal, never retried).
	ErrorTypeUnauthorized ErrorType = "unauthorized"

	// ErrorTypeNotFound indicates an unknown model or endpoint (fatal).
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimited indicates provider backpressure; retried with
	// exponential backoff until attempts are exhausted, then fatal.
	ErrorTypeRateLimited ErrorType = "rate_limited"

	// ErrorTypeSchemaInvalid indicates decoded output failed schema
	// validation; retried with a corrective message, then degraded to raw.
	ErrorTypeSchemaInvalid ErrorType = "schema_invalid"

	// ErrorTypeTransient indicates a 5xx or connection-level failure,
	// retried under the same backoff policy as rate limits.
	ErrorTypeTransient ErrorType = "transient"

	// ErrorTypeInvalidInput indicates a malformed prompt or request that
	// will never succeed (fatal immediately).
	ErrorTypeInvalidInput ErrorType = "invalid_input"

	// ErrorTypeFatal indicates an unclassified permanent failure.
	ErrorTypeFatal ErrorType = "fatal"
)

// Common invocation errors.
var (
	// ErrMaxRetriesExceeded indicates the retry budget is spent.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// ErrEmptyResponse indicates the provider returned no choices.
	ErrEmptyResponse = errors.New("empty provider response")

	// ErrNoModels indicates an invocation was attempted with no model pool.
	ErrNoModels = errors.New("model pool is empty")
)

// InvocationError is the typed failure of one model invocation.
type InvocationError struct {
	Type    ErrorType
	Model   string
	Message string
	// StatusCode is the provider HTTP status, when one was observed.
	StatusCode int
	// RetryAfter carries provider backpressure guidance, when present.
	RetryAfter time.Duration
	Cause      error
}

func (e *InvocationError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: model %s: %s", e.Type, e.Model, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure should be retried at the
// single-invocation boundary. Only rate limits and transient provider or
// network failures qualify; everything else either degrades (schema) or
// aborts the enclosing batch.
func (e *InvocationError) Retryable() bool {
	switch e.Type {
	case ErrorTypeRateLimited, ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns provider-recommended wait time, zero when absent.
func (e *InvocationError) GetRetryAfter() time.Duration { return e.RetryAfter }

// New constructs an InvocationError.
func New(t ErrorType, model, message string, cause error) *InvocationError {
	return &InvocationError{Type: t, Model: model, Message: message, Cause: cause}
}

// FromStatusCode maps a provider HTTP status to the error taxonomy.
func FromStatusCode(model string, code int, cause error) *InvocationError {
	e := &InvocationError{Model: model, StatusCode: code, Cause: cause}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Type = ErrorTypeUnauthorized
		e.Message = "authentication failed"
	case code == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
		e.Message = "model or endpoint not found"
	case code == http.StatusTooManyRequests || code == 529:
		e.Type = ErrorTypeRateLimited
		e.Message = "rate limit exceeded"
	case code >= 500:
		e.Type = ErrorTypeTransient
		e.Message = fmt.Sprintf("provider error %d", code)
	case code == http.StatusBadRequest:
		e.Type = ErrorTypeInvalidInput
		e.Message = "provider rejected request"
	default:
		e.Type = ErrorTypeFatal
		e.Message = fmt.Sprintf("unexpected provider status %d", code)
	}
	return e
}

// IsRetryable reports whether err carries a retryable invocation failure.
func IsRetryable(err error) bool {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie.Retryable()
	}
	return false
}

// IsFatal reports whether err should abort the enclosing batch outright.
func IsFatal(err error) bool {
	var ie *InvocationError
	if errors.As(err, &ie) {
		switch ie.Type {
		case ErrorTypeUnauthorized, ErrorTypeNotFound, ErrorTypeInvalidInput, ErrorTypeFatal:
			return true
		}
		return false
	}
	return err != nil
}
