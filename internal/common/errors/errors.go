// Package errors provides standardized error handling for the renewal
// notification pipeline. The Retryable flag drives the task queue's retry
// decision: retryable failures are rescheduled with backoff, terminal
// failures go straight to the failed set.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeUnrecognizedRecurrence ErrorCode = "UNRECOGNIZED_RECURRENCE"
	ErrCodeSubscriptionLoadFailed ErrorCode = "SUBSCRIPTION_LOAD_FAILED"
	ErrCodeEnqueueFailed          ErrorCode = "ENQUEUE_FAILED"
	ErrCodePayloadInvalid         ErrorCode = "PAYLOAD_INVALID"
	ErrCodeInvalidPushToken       ErrorCode = "INVALID_PUSH_TOKEN"
	ErrCodeDeviceNotRegistered    ErrorCode = "DEVICE_NOT_REGISTERED"
	ErrCodePushSendFailed         ErrorCode = "PUSH_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// IsRetryable reports whether err may be retried. Errors that are not
// StandardErrors are treated as retryable transient failures.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// CodeOf extracts the error code, or "INTERNAL_ERROR" for plain errors.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return "INTERNAL_ERROR"
}

// NewUnrecognizedRecurrenceError signals a recurrence value outside the
// closed weekly/monthly/yearly set. Non-retryable: it indicates a data or
// schema bug that retries cannot fix.
func NewUnrecognizedRecurrenceError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnrecognizedRecurrence,
		Message:   "Unrecognized subscription recurrence",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSubscriptionLoadError creates a retryable persistence read error.
func NewSubscriptionLoadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubscriptionLoadFailed,
		Message:   "Failed to load subscriptions",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEnqueueError creates a retryable queue submission error.
func NewEnqueueError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEnqueueFailed,
		Message:   "Failed to enqueue notification task",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadInvalidError creates a non-retryable malformed payload error.
func NewPayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadInvalid,
		Message:   "Notification payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidPushTokenError creates a non-retryable token format error.
func NewInvalidPushTokenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidPushToken,
		Message:   "Push token is not a valid Expo token",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeviceNotRegisteredError creates a non-retryable delivery error for
// tokens the gateway reports as permanently unregistered.
func NewDeviceNotRegisteredError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeviceNotRegistered,
		Message:   "Device is no longer registered for push notifications",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPushSendError creates a retryable gateway delivery error.
func NewPushSendError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePushSendFailed,
		Message:   "Push gateway delivery failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}
