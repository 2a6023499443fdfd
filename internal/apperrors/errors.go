package apperrors

import "errors"

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
)

// CustomError carries a user-facing message on top of one of the sentinels above.
type CustomError struct {
	Err     error
	Message string
	Field   string
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NotFound reports a failed lookup by id or username.
func NotFound(message string) error {
	return &CustomError{Err: ErrNotFound, Message: message}
}

// Validation reports malformed or missing input for a single field.
func Validation(field, message string) error {
	return &CustomError{Err: ErrValidationFailed, Message: message, Field: field}
}

// Conflict reports a uniqueness or state violation.
func Conflict(message string) error {
	return &CustomError{Err: ErrConflict, Message: message}
}

// InvalidCredentials is returned by authentication for any mismatch.
func InvalidCredentials() error {
	return &CustomError{Err: ErrInvalidCredentials, Message: "invalid credentials"}
}

// Is returns whether err matches target or any of errList.
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Field
	}
	return ""
}
