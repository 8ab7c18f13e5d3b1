package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent relay rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Rooms and namespaces
	ErrUnknownNamespace = errors.New("unknown namespace")
	ErrInvalidRoomKey   = errors.New("invalid room key")
	ErrInvalidEntityID  = errors.New("entity id must start with a letter or digit and contain only letters, digits and dashes")
	ErrMalformedJoin    = errors.New("malformed join payload")

	// Events
	ErrInvalidEvent         = errors.New("invalid domain event")
	ErrEventTypeRequired    = errors.New("event type is required")
	ErrHospitalIDRequired   = errors.New("hospital ID is required")
	ErrHospitalMismatch     = errors.New("room hospital does not match event hospital")
	ErrNoRooms              = errors.New("at least one room is required")
	ErrQueueUnavailable     = errors.New("queue store unavailable")
	ErrNamespaceUnavailable = errors.New("namespace is shutting down")

	// Generic
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

// NewRateLimitError is returned by the IP and per-service limiters.
func NewRateLimitError() *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
