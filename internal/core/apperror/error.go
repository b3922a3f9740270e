// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal         = "INTERNAL_ERROR"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeBusinessRule           = "BUSINESS_RULE_VIOLATION"
	CodeEntityArchived         = "ENTITY_ARCHIVED"
	CodeCollidesWithExisting   = "COLLIDES_WITH_EXISTING"
	CodeNoDefaultEntity        = "NO_DEFAULT_ENTITY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeCounterExhausted       = "COUNTER_EXHAUSTED"

	// Not found (404)
	CodeNotFound       = "NOT_FOUND"
	CodeEntityNotFound = "ENTITY_NOT_FOUND"

	// Conflict (409)
	CodeConflict  = "CONFLICT"
	CodeDuplicate = "DUPLICATE_ENTRY"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, thresholds, ids)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewEntityNotFound is returned when a legal entity does not exist
// (or does not belong to the calling company).
func NewEntityNotFound(legalEntityID any) *AppError {
	return &AppError{
		Code:       CodeEntityNotFound,
		Message:    "Legal entity not found, select a valid entity",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"legal_entity_id": legalEntityID},
	}
}

// NewEntityArchived is returned when a new document targets an archived legal entity.
func NewEntityArchived(legalEntityID any) *AppError {
	return &AppError{
		Code:       CodeEntityArchived,
		Message:    "Legal entity is archived, select a valid entity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"legal_entity_id": legalEntityID},
	}
}

// NewNoDefaultEntity is returned when no explicit entity was given and the
// company has no default legal entity.
func NewNoDefaultEntity(companyID any) *AppError {
	return &AppError{
		Code:       CodeNoDefaultEntity,
		Message:    "Company has no default legal entity, select a valid entity",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"company_id": companyID},
	}
}

// NewCollidesWithExisting rejects an override that would rewind a counter
// into the already-issued range.
func NewCollidesWithExisting(highest, proposed int64) *AppError {
	return &AppError{
		Code:       CodeCollidesWithExisting,
		Message:    fmt.Sprintf("nextNumber must be greater than the highest already-issued number (%d).", highest),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"field":    "nextNumber",
			"highest":  highest,
			"proposed": proposed,
		},
	}
}

// NewCounterExhausted rejects an allocation from a counter that has issued
// its last number.
func NewCounterExhausted(legalEntityID any, kind string) *AppError {
	return &AppError{
		Code:       CodeCounterExhausted,
		Message:    "Counter has issued its last number",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"legalEntityId": legalEntityID,
			"kind":          kind,
		},
	}
}

// NewStoreUnavailable wraps a transient storage failure (503).
func NewStoreUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Numbering store is temporarily unavailable, retry the request",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
