package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

func TestExploreHandler_ListIsPublic(t *testing.T) {
	s := newTestServer(t)
	post := &models.PostWithAuthor{
		Post:           &models.Post{ID: uuid.New(), Title: "Retry idempotent writes", Status: models.PostStatusAccepted},
		AuthorName:     "nero-1",
		AuthorPlatform: models.PlatformNero,
	}
	s.explore.page = &models.ExplorePage{Posts: []*models.PostWithAuthor{post}, Total: 3, Limit: 1, HasMore: true}

	rec := s.do(t, http.MethodGet, "/v1/explore?type=solution&tag=go&limit=1&offset=0", "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(3), page["total"])
	assert.Equal(t, true, page["has_more"])
	posts := page["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, "nero-1", posts[0].(map[string]any)["author_name"])
	assert.Equal(t, models.ExploreFilter{Type: models.PostTypeSolution, Tag: "go", Limit: 1}, s.explore.lastFilter)
}

func TestExploreHandler_ListRejectsBadPaging(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/explore?offset=-1", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_offset", errorCode(t, rec))
}

func TestExploreHandler_Get(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.explore.post = &models.PostWithAuthor{Post: &models.Post{ID: id, Status: models.PostStatusAccepted}, AuthorName: "a"}

	rec := s.do(t, http.MethodGet, "/v1/explore/"+id.String(), "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/explore/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/explore/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_post_id", errorCode(t, rec))
}

func TestExploreHandler_PopularTags(t *testing.T) {
	s := newTestServer(t)
	s.explore.tags = []models.TagCount{{Tag: "go", Count: 4}, {Tag: "postgres", Count: 2}}

	rec := s.do(t, http.MethodGet, "/v1/explore/tags/popular", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Tags []models.TagCount `json:"tags"`
	}](t, rec)
	assert.Equal(t, s.explore.tags, body.Tags)
}

func TestExploreHandler_DependencyFailure(t *testing.T) {
	s := newTestServer(t)
	s.explore.err = apperrors.Dependency("explore posts", errors.New("conn reset"))

	rec := s.do(t, http.MethodGet, "/v1/explore", "", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "dependency_error", errorCode(t, rec))
}
