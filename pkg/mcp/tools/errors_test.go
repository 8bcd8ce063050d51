package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

func TestNewErrorResult(t *testing.T) {
	result := NewErrorResult("test_error", "this is a test error")

	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	assert.True(t, result.IsError)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	assert.True(t, errResp.Error, "error field should be true")
	assert.Equal(t, "test_error", errResp.Code)
	assert.Equal(t, "this is a test error", errResp.Message)
	assert.Nil(t, errResp.Details, "details should be nil when not provided")
}

func TestNewErrorResultWithDetails(t *testing.T) {
	result := NewErrorResultWithDetails("invalid_parameters", "invalid vote value", map[string]any{
		"expected": []string{"accept", "reject"},
		"actual":   "maybe",
	})

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
	details, ok := errResp.Details.(map[string]any)
	require.True(t, ok, "details should be a map")
	assert.Equal(t, "maybe", details["actual"])
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantGoErr bool
	}{
		{"self review", apperrors.ErrSelfReview, "self_review", false},
		{"duplicate review", apperrors.ErrDuplicateReview, "duplicate_review", false},
		{"not open", apperrors.ErrPostNotOpenForReview, "post_not_open_for_review", false},
		{"validation", apperrors.NewValidationError("title", "is required"), "validation_error", false},
		{"not found", apperrors.ErrPostNotFound, "not_found", false},
		{"dependency", apperrors.Dependency("insert post", errors.New("connection reset")), "", true},
		{"uncategorized", errors.New("boom"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := HandleServiceError(tt.err, "op")
			if tt.wantGoErr {
				assert.Nil(t, result)
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, result)

			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(getTextContent(result)), &errResp))
			assert.Equal(t, tt.wantCode, errResp.Code)
		})
	}
}
