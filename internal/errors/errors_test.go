package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kindlingnews/kindling/internal/domain"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    int
	}{
		{TypeValidation, http.StatusBadRequest},
		{TypeUnauthorized, http.StatusUnauthorized},
		{TypeForbidden, http.StatusForbidden},
		{TypeNotFound, http.StatusNotFound},
		{TypeConflict, http.StatusConflict},
		{TypeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			e := &Error{Type: tt.errType}
			assert.Equal(t, tt.want, e.HTTPStatus())
		})
	}
}

func TestAsStructuredError_DomainSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{domain.ErrItemNotFound, TypeNotFound},
		{domain.ErrUserNotFound, TypeNotFound},
		{domain.ErrCommentNotFound, TypeNotFound},
		{domain.ErrDuplicateVote, TypeConflict},
		{domain.ErrUsernameTaken, TypeConflict},
		{domain.ErrInsufficientKarma, TypeForbidden},
		{domain.ErrForbidden, TypeForbidden},
		{domain.ErrEditWindowExpired, TypeForbidden},
		{domain.ErrSubmittedRecently, TypeForbidden},
		{domain.ErrInvalidParent, TypeValidation},
		{domain.ErrValidation, TypeValidation},
		{domain.ErrInvalidCredentials, TypeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got := AsStructuredError(tt.err)
			assert.Equal(t, tt.want, got.Type)
		})
	}
}

func TestAsStructuredError_WrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("wait 5m before submitting again: %w", domain.ErrSubmittedRecently)
	got := AsStructuredError(wrapped)
	assert.Equal(t, TypeForbidden, got.Type)
	assert.Contains(t, got.Message, "wait 5m")
}

func TestAsStructuredError_UnknownBecomesInternal(t *testing.T) {
	got := AsStructuredError(fmt.Errorf("connection reset"))
	assert.Equal(t, TypeInternal, got.Type)
	// The cause is not leaked to the client.
	assert.Equal(t, "internal server error", got.Message)
}

func TestAsStructuredError_PassesThroughStructured(t *testing.T) {
	orig := ValidationError("bad input").WithField("field", "title")
	got := AsStructuredError(fmt.Errorf("handler: %w", orig))
	assert.Same(t, orig, got)
}

func TestAsStructuredError_Nil(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))
}
