package application

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when the requested meeting or user does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrForbidden is returned when an authenticated principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrConflict is returned when a write collides with an existing unique value.
	ErrConflict = errors.New("application: conflict")
	// ErrUnauthenticated is returned when an operation is invoked without a caller identity.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrInvalidCredentials is returned when a login attempt or token cannot be verified.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
