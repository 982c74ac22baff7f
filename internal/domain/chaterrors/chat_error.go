// Package chaterrors defines error types and classification for conversation processing.
package chaterrors

import (
	"context"
	"errors"
	"fmt"
)

// Severity indicates how an error should be handled.
type Severity string

const (
	SeverityRetryable Severity = "retryable" // Retry with backoff
	SeverityFallback  Severity = "fallback"  // Degrade to fallback reply
	SeverityFatal     Severity = "fatal"     // Do not retry, surface to operators
	SeverityIgnore    Severity = "ignore"    // Expected condition, drop silently
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsRetryable returns true if the error can be retried.
func (s Severity) IsRetryable() bool {
	return s == SeverityRetryable
}

// IsFatal returns true if the error must not be retried.
func (s Severity) IsFatal() bool {
	return s == SeverityFatal
}

// ChatError represents an error raised while processing a conversation event.
type ChatError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Cause    error          `json:"-"`
	Details  map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error can be retried.
func (e *ChatError) IsRetryable() bool {
	return e.Severity.IsRetryable()
}

// WithCause adds an underlying cause to the error.
func (e *ChatError) WithCause(cause error) *ChatError {
	e.Cause = cause
	return e
}

// WithDetails adds additional details to the error.
func (e *ChatError) WithDetails(details map[string]any) *ChatError {
	e.Details = details
	return e
}

// New creates a new chat error.
func New(code, message string, severity Severity) *ChatError {
	return &ChatError{
		Code:     code,
		Message:  message,
		Severity: severity,
	}
}

// Wrap wraps an error with a code and severity.
func Wrap(err error, code, message string, severity Severity) *ChatError {
	return &ChatError{
		Code:     code,
		Message:  message,
		Severity: severity,
		Cause:    err,
	}
}

// Common error codes.
const (
	// Retryable upstream failures
	CodeTimeout        = "TIMEOUT"
	CodeRateLimit      = "RATE_LIMIT"
	CodeProviderError  = "PROVIDER_ERROR"
	CodeServiceUnavail = "SERVICE_UNAVAILABLE"

	// Fatal failures
	CodeAuthFailed           = "AUTH_FAILED"
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeParseError           = "PARSE_ERROR"
	CodeSystemError          = "SYSTEM_ERROR"

	// Degraded but accepted
	CodeDeliveryFailed = "DELIVERY_FAILED"
	CodeCircuitOpen    = "CIRCUIT_OPEN"

	// Expected duplicate redelivery, not an error
	CodeDuplicateEvent = "DUPLICATE_EVENT"
)

// Predefined errors for common scenarios.
var (
	ErrConversationNotFound = New(CodeConversationNotFound, "conversation not found", SeverityFatal)
	ErrDuplicateEvent       = New(CodeDuplicateEvent, "event already processed", SeverityIgnore)
	ErrCircuitOpen          = New(CodeCircuitOpen, "responder circuit breaker is open", SeverityFallback)
)

// Classify determines the severity of an arbitrary error. Errors that are
// already a ChatError keep their declared severity; everything else is treated
// as retryable so the task queue redelivery policy applies.
func Classify(err error) Severity {
	if err == nil {
		return ""
	}
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Severity
	}
	if errors.Is(err, context.Canceled) {
		return SeverityFatal
	}
	return SeverityRetryable
}

// IsDuplicate reports whether err is the duplicate-event sentinel.
func IsDuplicate(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Code == CodeDuplicateEvent
}

// IsNotFound reports whether err is a conversation-not-found error.
func IsNotFound(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Code == CodeConversationNotFound
}
