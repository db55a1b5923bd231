package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	assert.Equal(t, "validation failed", nilErr.Error())

	withFields := &ValidationError{FieldErrors: map[string]string{"title": "blank", "callId": "required"}}
	assert.Equal(t, "validation failed: callId, title", withFields.Error())
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, (&ValidationError{}).HasErrors())
	assert.True(t, newValidationError("field", "bad").HasErrors())
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"":                    nil,
		"not_found":           fmt.Errorf("load: %w", ErrNotFound),
		"forbidden":           ErrForbidden,
		"conflict":            errors.Join(ErrConflict, newValidationError("email", "taken")),
		"unauthenticated":     ErrUnauthenticated,
		"invalid_credentials": ErrInvalidCredentials,
		"validation":          fmt.Errorf("wrapped: %w", newValidationError("title", "blank")),
		"unexpected":          errors.New("disk on fire"),
	}
	for want, err := range cases {
		assert.Equal(t, want, ErrorKind(err), "%v", err)
	}
}
