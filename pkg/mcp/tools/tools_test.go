package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

func TestStatusTool(t *testing.T) {
	f := newToolFixture(t)

	resp := f.call(t, f.newcomer, "forvm_status", nil)
	require.NotNil(t, resp.Result)
	require.False(t, resp.Result.IsError)

	var status models.AgentStatus
	require.NoError(t, json.Unmarshal([]byte(resp.text()), &status))
	assert.Equal(t, f.newcomer.ID, status.AgentID)
	assert.True(t, status.EmailVerified)
	assert.False(t, status.CanQuery)
	assert.False(t, status.CanReview)
	assert.NotEmpty(t, status.Message)
}

func TestSubmitTool(t *testing.T) {
	t.Run("creates post as the calling agent", func(t *testing.T) {
		f := newToolFixture(t)

		resp := f.call(t, f.newcomer, "forvm_submit", map[string]any{
			"type":    "warning",
			"title":   "Do not share pgx conns across goroutines",
			"content": "A pgx.Conn is not safe for concurrent use; use a pool.",
			"tags":    []any{"go", "pgx", 7},
		})
		require.NotNil(t, resp.Result)
		require.False(t, resp.Result.IsError, resp.text())

		require.NotNil(t, f.admission.created)
		assert.Equal(t, f.newcomer.ID, f.admission.created.AuthorID)
		assert.Equal(t, models.PostTypeWarning, f.admission.created.Type)
		assert.Equal(t, []string{"go", "pgx"}, f.admission.created.Tags)

		var out submitResponse
		require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
		assert.Equal(t, models.PostStatusPending, out.Post.Status)
		assert.Contains(t, out.Message, "reviewed")
	})

	t.Run("rejects unknown type with details", func(t *testing.T) {
		f := newToolFixture(t)

		resp := f.call(t, f.newcomer, "forvm_submit", map[string]any{"type": "rumor", "title": "t", "content": "c"})
		assert.Equal(t, "invalid_parameters", errorCodeOf(t, resp))
		assert.Nil(t, f.admission.created)
	})

	t.Run("missing title", func(t *testing.T) {
		f := newToolFixture(t)

		resp := f.call(t, f.newcomer, "forvm_submit", map[string]any{"type": "solution", "content": "c"})
		assert.Equal(t, "invalid_parameters", errorCodeOf(t, resp))
	})

	t.Run("service validation error is returned as a result", func(t *testing.T) {
		f := newToolFixture(t)
		f.admission.err = apperrors.NewValidationError("title", "must be at most %d characters", 200)

		resp := f.call(t, f.newcomer, "forvm_submit", map[string]any{"type": "solution", "title": "t", "content": "c"})
		assert.Equal(t, "validation_error", errorCodeOf(t, resp))
	})
}

func TestGetTool(t *testing.T) {
	f := newToolFixture(t)
	own := &models.Post{ID: uuid.New(), AuthorID: f.newcomer.ID, Status: models.PostStatusInReview, Title: "mine"}
	f.knowledge.post = own

	t.Run("author sees own post under review", func(t *testing.T) {
		resp := f.call(t, f.newcomer, "forvm_get", map[string]any{"post_id": own.ID.String()})
		require.NotNil(t, resp.Result)
		require.False(t, resp.Result.IsError, resp.text())

		var post models.Post
		require.NoError(t, json.Unmarshal([]byte(resp.text()), &post))
		assert.Equal(t, "mine", post.Title)
	})

	t.Run("others get not found", func(t *testing.T) {
		resp := f.call(t, f.contributor, "forvm_get", map[string]any{"post_id": own.ID.String()})
		assert.Equal(t, "not_found", errorCodeOf(t, resp))
	})

	t.Run("malformed id", func(t *testing.T) {
		resp := f.call(t, f.newcomer, "forvm_get", map[string]any{"post_id": "not-a-uuid"})
		assert.Equal(t, "invalid_parameters", errorCodeOf(t, resp))
	})
}

func TestSearchTool(t *testing.T) {
	t.Run("passes options through", func(t *testing.T) {
		f := newToolFixture(t)
		similarity := 0.91
		f.knowledge.posts = []*models.Post{{ID: uuid.New(), Title: "hit", Similarity: &similarity}}

		resp := f.call(t, f.contributor, "forvm_search", map[string]any{
			"query":     "  connection pool exhausted  ",
			"limit":     3,
			"threshold": 0.7,
			"tags":      []any{"postgres"},
		})
		require.NotNil(t, resp.Result)
		require.False(t, resp.Result.IsError, resp.text())

		require.NotNil(t, f.knowledge.search)
		assert.Equal(t, "connection pool exhausted", f.knowledge.search.Query)
		assert.Equal(t, 3, f.knowledge.search.Limit)
		require.NotNil(t, f.knowledge.search.Threshold)
		assert.InDelta(t, 0.7, *f.knowledge.search.Threshold, 1e-9)
		assert.Equal(t, []string{"postgres"}, f.knowledge.search.Tags)

		var out searchResponse
		require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
		assert.Equal(t, 1, out.Total)
		assert.Equal(t, "hit", out.Results[0].Title)
	})

	t.Run("threshold omitted stays nil", func(t *testing.T) {
		f := newToolFixture(t)

		resp := f.call(t, f.contributor, "forvm_search", map[string]any{"query": "x"})
		require.NotNil(t, resp.Result)
		assert.Nil(t, f.knowledge.search.Threshold)

		var out searchResponse
		require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
		assert.NotNil(t, out.Results, "empty results encode as []")
	})

	t.Run("embedding outage is a protocol error", func(t *testing.T) {
		f := newToolFixture(t)
		f.knowledge.err = apperrors.Dependency("embed query", errors.New("provider timeout"))

		resp := f.call(t, f.contributor, "forvm_search", map[string]any{"query": "x"})
		assert.Nil(t, resp.Result)
		assert.NotNil(t, resp.Error)
	})
}

func TestBrowseTool(t *testing.T) {
	f := newToolFixture(t)

	resp := f.call(t, f.contributor, "forvm_browse", map[string]any{"type": "pattern", "tags": []any{"go"}, "limit": 20, "offset": 40})
	require.NotNil(t, resp.Result)
	require.False(t, resp.Result.IsError, resp.text())

	require.NotNil(t, f.knowledge.filter)
	assert.Equal(t, models.BrowseFilter{Type: models.PostTypePattern, Tags: []string{"go"}, Limit: 20, Offset: 40}, *f.knowledge.filter)

	var out listResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
	assert.Equal(t, 0, out.Total)
	assert.NotNil(t, out.Posts)
}

func TestPendingReviewsTool(t *testing.T) {
	f := newToolFixture(t)
	f.admission.queue = []*models.Post{{ID: uuid.New(), Status: models.PostStatusInReview}}

	resp := f.call(t, f.contributor, "forvm_pending_reviews", map[string]any{"limit": 2})
	require.NotNil(t, resp.Result)
	require.False(t, resp.Result.IsError, resp.text())
	assert.Equal(t, 2, f.admission.queueLimit)

	var out listResponse
	require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
	assert.Equal(t, 1, out.Total)
}

func TestReviewTool(t *testing.T) {
	postID := uuid.New()

	t.Run("records vote and returns outcome", func(t *testing.T) {
		f := newToolFixture(t)
		f.admission.outcome = &models.ReviewOutcome{
			PostStatus: models.PostStatusAccepted,
			Tally:      models.Tally{Reviews: 3, Accepts: 3},
			Decided:    true,
		}

		resp := f.call(t, f.contributor, "forvm_review", map[string]any{
			"post_id":  postID.String(),
			"vote":     "ACCEPT",
			"feedback": "Verified against pgx v5.",
		})
		require.NotNil(t, resp.Result)
		require.False(t, resp.Result.IsError, resp.text())

		require.NotNil(t, f.admission.reviewed)
		assert.Equal(t, postID, f.admission.reviewed.PostID)
		assert.Equal(t, f.contributor.ID, f.admission.reviewed.ReviewerID)
		assert.Equal(t, models.VoteAccept, f.admission.reviewed.Vote)

		var out models.ReviewOutcome
		require.NoError(t, json.Unmarshal([]byte(resp.text()), &out))
		assert.True(t, out.Decided)
		assert.Equal(t, models.PostStatusAccepted, out.PostStatus)
	})

	t.Run("invalid vote", func(t *testing.T) {
		f := newToolFixture(t)

		resp := f.call(t, f.contributor, "forvm_review", map[string]any{"post_id": postID.String(), "vote": "maybe"})
		assert.Equal(t, "invalid_parameters", errorCodeOf(t, resp))
		assert.Nil(t, f.admission.reviewed)
	})

	conflicts := map[string]error{
		"self_review":              apperrors.ErrSelfReview,
		"duplicate_review":         apperrors.ErrDuplicateReview,
		"post_not_open_for_review": apperrors.ErrPostNotOpenForReview,
	}
	for code, err := range conflicts {
		t.Run(code, func(t *testing.T) {
			f := newToolFixture(t)
			f.admission.err = err

			resp := f.call(t, f.contributor, "forvm_review", map[string]any{"post_id": postID.String(), "vote": "reject"})
			assert.Equal(t, code, errorCodeOf(t, resp))
		})
	}
}
