package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictErrorsMatchCategory(t *testing.T) {
	for _, err := range []error{ErrSelfReview, ErrDuplicateReview, ErrPostNotOpenForReview, ErrAlreadyAccepted, ErrAlreadyRejected} {
		assert.ErrorIs(t, err, ErrConflict, err.Error())
		assert.NotErrorIs(t, err, ErrValidation)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("title", "is required")
	assert.Equal(t, "title: is required", err.Error())
	assert.ErrorIs(t, err, ErrValidation)

	wrapped := fmt.Errorf("create post: %w", err)
	var ve *ValidationError
	assert.True(t, errors.As(wrapped, &ve))
	assert.Equal(t, "title", ve.Field)
}

func TestDependency(t *testing.T) {
	assert.Nil(t, Dependency("op", nil))

	cause := errors.New("connection refused")
	err := Dependency("insert review", cause)
	assert.ErrorIs(t, err, ErrDependency)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert review: connection refused", err.Error())

	// Already categorized errors pass through untouched.
	assert.Equal(t, ErrDuplicateReview, Dependency("insert review", ErrDuplicateReview))
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrSelfReview, "self_review"},
		{fmt.Errorf("wrapped: %w", ErrDuplicateReview), "duplicate_review"},
		{ErrPostNotOpenForReview, "post_not_open_for_review"},
		{ErrPostNotFound, "not_found"},
		{NewValidationError("vote", "bad"), "validation_error"},
		{Dependency("embed", errors.New("503")), "dependency_error"},
		{ErrContributionRequired, "contribution_required"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}
