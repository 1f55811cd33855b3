// Package errors provides standardized error handling for the routing engine.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Validation errors: malformed input, rejected before a record exists.
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeMissingPrincipal ErrorCode = "MISSING_PRINCIPAL"

	// Precondition errors: record marked failed with reason.
	ErrCodeChildAgeUnresolvable ErrorCode = "CHILD_AGE_UNRESOLVABLE"
	ErrCodeNoAvailablePartner   ErrorCode = "NO_AVAILABLE_PARTNER"
	ErrCodePayloadExclusion     ErrorCode = "PAYLOAD_EXCLUSION_VIOLATION"
	ErrCodePartnerKeyInvalid    ErrorCode = "PARTNER_KEY_INVALID"

	// Delivery errors: retries exhausted or partner rejected.
	ErrCodeDeliveryRejected  ErrorCode = "DELIVERY_REJECTED"
	ErrCodeDeliveryExhausted ErrorCode = "DELIVERY_RETRIES_EXHAUSTED"

	// Internal errors: unexpected failures, generic message outward.
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeStoreFailure ErrorCode = "STORE_FAILURE"
	ErrCodeEncryption   ErrorCode = "ENCRYPTION_FAILED"
)

// Category groups error codes by how the orchestrator treats them.
type Category string

const (
	CategoryValidation   Category = "VALIDATION"
	CategoryPrecondition Category = "PRECONDITION"
	CategoryDelivery     Category = "DELIVERY"
	CategoryInternal     Category = "INTERNAL"
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

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidInputError creates a non-retryable validation error.
func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Request input failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingPrincipalError creates a non-retryable validation error for
// requests arriving without an authenticated principal.
func NewMissingPrincipalError() *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingPrincipal,
		Message:   "Authenticated principal is required",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChildAgeUnresolvableError creates a non-retryable precondition error.
func NewChildAgeUnresolvableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeChildAgeUnresolvable,
		Message:   "Child age could not be resolved",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoAvailablePartnerError creates a non-retryable precondition error.
func NewNoAvailablePartnerError(jurisdiction string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoAvailablePartner,
		Message:   "No available partner",
		Details:   fmt.Sprintf("jurisdiction: %s", jurisdiction),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadExclusionError creates a non-retryable precondition error for a
// payload that carried forbidden fields.
func NewPayloadExclusionError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadExclusion,
		Message:   "Outbound payload failed exclusion validation",
		Details:   fmt.Sprintf("forbidden fields: %s", strings.Join(fields, ", ")),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPartnerKeyInvalidError creates a non-retryable precondition error.
func NewPartnerKeyInvalidError(partnerID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePartnerKeyInvalid,
		Message:   "Partner public key is unusable",
		Details:   fmt.Sprintf("partnerId: %s, error: %s", partnerID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryRejectedError creates a non-retryable delivery error for a
// partner-side rejection (4xx or received=false).
func NewDeliveryRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryRejected,
		Message:   "Partner rejected the delivery",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryExhaustedError creates a non-retryable delivery error raised
// once the bounded retry budget is spent.
func NewDeliveryExhaustedError(attempts int, lastErr string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryExhausted,
		Message:   "Partner delivery retries exhausted",
		Details:   fmt.Sprintf("attempts: %d, lastError: %s", attempts, lastErr),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEncryptionError creates a non-retryable internal error.
func NewEncryptionError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEncryption,
		Message:   "Payload encryption failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreFailureError creates a retryable store error.
func NewStoreFailureError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailure,
		Message:   "Routing store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError creates a generic internal error. Details are kept for the
// audit sink; callers surface only the message.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal routing error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetCategory returns the orchestrator-facing category of an error code.
func GetCategory(code ErrorCode) Category {
	switch code {
	case ErrCodeInvalidInput, ErrCodeMissingPrincipal:
		return CategoryValidation
	case ErrCodeChildAgeUnresolvable, ErrCodeNoAvailablePartner,
		ErrCodePayloadExclusion, ErrCodePartnerKeyInvalid:
		return CategoryPrecondition
	case ErrCodeDeliveryRejected, ErrCodeDeliveryExhausted:
		return CategoryDelivery
	default:
		return CategoryInternal
	}
}

// IsExpected reports whether the error belongs to a category the orchestrator
// returns as a structured failure rather than an internal error.
func IsExpected(err error) bool {
	stdErr, ok := err.(*StandardError)
	if !ok {
		return false
	}
	return GetCategory(stdErr.Code) != CategoryInternal
}

// AsStandard unwraps err into a *StandardError, wrapping unknown errors as
// internal ones so the caller never sees raw detail.
func AsStandard(err error) *StandardError {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr
	}
	return NewInternalError(err)
}
