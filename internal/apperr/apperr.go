// Package apperr defines the error taxonomy shared by the workflow and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Type classifies an application error.
type Type string

const (
	TypeValidation           Type = "VALIDATION"
	TypeUnauthorized         Type = "UNAUTHORIZED"
	TypeForbidden            Type = "FORBIDDEN"
	TypeNotFound             Type = "NOT_FOUND"
	TypeConflict             Type = "CONFLICT"
	TypeTransport            Type = "TRANSPORT"
	TypeUnsupportedMediaType Type = "UNSUPPORTED_MEDIA_TYPE"
	TypeUnavailable          Type = "UNAVAILABLE"
	TypeInternal             Type = "INTERNAL"
)

// FieldError describes one failed input check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError represents an application error
type AppError struct {
	Type    Type
	Message string
	Err     error
	Details []FieldError
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation creates a validation error carrying per-field details.
func Validation(message string, details ...FieldError) *AppError {
	return &AppError{Type: TypeValidation, Message: message, Details: details}
}

// Unauthorized creates an error for a missing or invalid session.
func Unauthorized(message string) *AppError {
	return &AppError{Type: TypeUnauthorized, Message: message}
}

// Forbidden creates an error for a session lacking the required role.
func Forbidden(message string) *AppError {
	return &AppError{Type: TypeForbidden, Message: message}
}

// NotFound creates a not found error
func NotFound(message string) *AppError {
	return &AppError{Type: TypeNotFound, Message: message}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{Type: TypeConflict, Message: message}
}

// Transport creates an error for a failed call to an external collaborator (mail, geocoding, broker).
func Transport(message string, err error) *AppError {
	return &AppError{Type: TypeTransport, Message: message, Err: err}
}

// UnsupportedMediaType creates an error for a request body in the wrong format.
func UnsupportedMediaType(message string) *AppError {
	return &AppError{Type: TypeUnsupportedMediaType, Message: message}
}

// Unavailable creates an error for a feature whose backing service is not configured.
func Unavailable(message string) *AppError {
	return &AppError{Type: TypeUnavailable, Message: message}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{Type: TypeInternal, Message: message, Err: err}
}

// As extracts the AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError of the given type.
func Is(err error, t Type) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// StatusCode maps an error to its HTTP status. Errors outside the taxonomy are 500.
func StatusCode(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
