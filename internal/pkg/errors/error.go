package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error.
// Field names the logical request field the rejection is about, so clients
// can render it next to the offending input.
type AppError struct {
	Code    int    // Business error code
	Message string // Human-readable message
	Field   string // Offending logical field (preferred_identifier, data_catalog, ...)
	Reason  string // Machine-readable sub-case
	Err     error  // Underlying error (if any)
	Details string // Additional details
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.Field != "" {
		prefix = fmt.Sprintf("[%d] %s (%s)", e.Code, e.Message, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Details)
	}
	return prefix
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// WithField returns the error keyed on the given field.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

// WithReason attaches a machine-readable sub-case.
func (e *AppError) WithReason(reason string) *AppError {
	e.Reason = reason
	return e
}

// New creates a new AppError with the given code
func New(code int, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Details: detail,
	}
}

// Newf creates a new AppError with formatted details
func Newf(code int, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an error code
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// Keep the innermost classification
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}

	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Err:     err,
		Details: detail,
	}
}

// Wrapf wraps an error with formatted details
func Wrapf(err error, code int, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is checks if err is an AppError with the given code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As extracts the AppError from err, if any
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ExtractCode extracts the error code from an error
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// GetDetails extracts error details
func GetDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Details
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// NewValidationError creates a validation error keyed on a field
func NewValidationError(field string, details ...string) *AppError {
	return New(ErrInvalidParams, details...).WithField(field)
}
