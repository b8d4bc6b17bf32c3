package formrelay

import (
	"fmt"
	"net/http"
)

// Error codes as constants
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeValidationFailed  = "validation_failed"
	ErrorCodeInvalidToken      = "invalid_csrf_token"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeSendFailed        = "send_failed"
	ErrorCodeServerError       = "server_error"
)

// Client-facing messages are fixed, generic strings per taxonomy category;
// internal detail stays in the logs.
const (
	msgInvalidToken     = "Invalid or missing CSRF token"
	msgValidationFailed = "Validation failed"
	msgRateLimited      = "Too many requests. Please try again later."
	msgSendFailed       = "Failed to send email"
	msgServerError      = "Internal server error"
)

// APIError represents a client-facing request failure. Code and Status are
// always populated.
type APIError struct {
	Code    string       // machine-readable error code
	Message string       // fixed client-facing message
	Status  int          // HTTP status code
	Details []FieldError // field-level detail for validation failures
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// ErrInvalidRequest indicates the request body could not be parsed. Parse
// failures surface as a generic server error, not a validation response.
func ErrInvalidRequest() *APIError {
	return NewAPIError(ErrorCodeServerError, msgServerError, http.StatusInternalServerError)
}

// ErrValidationFailed carries field-level validation detail
func ErrValidationFailed(details []FieldError) *APIError {
	e := NewAPIError(ErrorCodeValidationFailed, msgValidationFailed, http.StatusBadRequest)
	e.Details = details
	return e
}

// ErrInvalidToken indicates a missing or invalid anti-forgery token
func ErrInvalidToken() *APIError {
	return NewAPIError(ErrorCodeInvalidToken, msgInvalidToken, http.StatusForbidden)
}

// ErrRateLimited indicates the client exceeded the submission limit
func ErrRateLimited() *APIError {
	return NewAPIError(ErrorCodeRateLimitExceeded, msgRateLimited, http.StatusTooManyRequests)
}

// ErrSendFailed indicates the email collaborator rejected or failed
func ErrSendFailed() *APIError {
	return NewAPIError(ErrorCodeSendFailed, msgSendFailed, http.StatusInternalServerError)
}
