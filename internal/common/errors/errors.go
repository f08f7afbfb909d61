// Package errors provides the standardized error taxonomy shared by the
// dispatcher, the resolver and every capability handler.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeRoutingExhausted   ErrorCode = "ROUTING_EXHAUSTED"
	ErrCodeDuplicatePriority  ErrorCode = "DUPLICATE_PRIORITY"
	ErrCodeInvalidHandler     ErrorCode = "INVALID_HANDLER"
	ErrCodeUpstreamFailed     ErrorCode = "UPSTREAM_FAILED"
	ErrCodeUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeRecordSourceFailed ErrorCode = "RECORD_SOURCE_FAILED"
	ErrCodeSessionStoreFailed ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeSessionBusy        ErrorCode = "SESSION_BUSY"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the collaborator error, if any.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError rejects a malformed query before routing.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Query validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRoutingExhaustedError reports that no handler matched and no default exists.
func NewRoutingExhaustedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRoutingExhausted,
		Message:   "No handler accepted the query",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicatePriorityError rejects a handler set with tied ranks.
func NewDuplicatePriorityError(rank int, first, second string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDuplicatePriority,
		Message:   "Handler priority ranks must be unique",
		Details:   fmt.Sprintf("rank %d claimed by %q and %q", rank, first, second),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidHandlerError rejects a malformed handler registration.
func NewInvalidHandlerError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidHandler,
		Message:   "Invalid handler registration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamError wraps a failed collaborator call. Deadline and cancellation
// errors become UPSTREAM_TIMEOUT.
func NewUpstreamError(service, operation string, err error) *StandardError {
	code := ErrCodeUpstreamFailed
	message := fmt.Sprintf("Upstream service '%s' failed", service)
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		code = ErrCodeUpstreamTimeout
		message = fmt.Sprintf("Upstream service '%s' timed out", service)
	}

	details := fmt.Sprintf("operation: %s", operation)
	if err != nil {
		details = fmt.Sprintf("operation: %s, error: %s", operation, err.Error())
	}

	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: true,
		Metadata: map[string]interface{}{
			"service":   service,
			"operation": operation,
		},
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewRecordSourceError wraps a failure to list records.
func NewRecordSourceError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordSourceFailed,
		Message:   "Record source unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSessionStoreError wraps a failure of a session store backend.
func NewSessionStoreError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSessionBusyError reports that an earlier query of the same session held
// the session until ctx ended.
func NewSessionBusyError(sessionID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionBusy,
		Message:   "Timed out waiting for the session",
		Details:   fmt.Sprintf("session: %s, error: %s", sessionID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInternalError normalizes an unexpected error.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// AsStandard extracts a StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize always returns a StandardError for a non-nil error.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// IsUpstream reports whether err is a collaborator failure.
func IsUpstream(err error) bool {
	return HasCode(err, ErrCodeUpstreamFailed) || HasCode(err, ErrCodeUpstreamTimeout)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidationFailed)
}

// IsRetryableErrorCode reports whether a code may be retried for idempotent reads.
func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeUpstreamFailed, ErrCodeUpstreamTimeout, ErrCodeRecordSourceFailed:
		return true
	default:
		return false
	}
}

// GetErrorCategory groups codes for metrics and logs.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed:
		return "VALIDATION"
	case ErrCodeRoutingExhausted, ErrCodeDuplicatePriority, ErrCodeInvalidHandler:
		return "ROUTING"
	case ErrCodeUpstreamFailed, ErrCodeUpstreamTimeout:
		return "UPSTREAM"
	case ErrCodeRecordSourceFailed, ErrCodeSessionStoreFailed:
		return "STORAGE"
	case ErrCodeSessionBusy:
		return "CONCURRENCY"
	default:
		return "OTHER"
	}
}
