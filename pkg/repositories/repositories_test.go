//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/testhelpers"
)

// repoTestContext holds test dependencies for repository tests.
type repoTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	posts    PostRepository
	reviews  ReviewRepository
	agents   AgentRepository
	scoped   context.Context
}

func setupRepoTest(t *testing.T) *repoTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &repoTestContext{
		t:        t,
		engineDB: engineDB,
		posts:    NewPostRepository(),
		reviews:  NewReviewRepository(),
		agents:   NewAgentRepository(),
		scoped:   engineDB.ScopedContext(t),
	}
}

// ctx returns the test's scoped context; its connection is released at test end.
func (tc *repoTestContext) ctx() context.Context {
	return tc.scoped
}

func (tc *repoTestContext) agent() uuid.UUID {
	return tc.engineDB.InsertAgent(tc.t, 0, true)
}

// post creates a post with a unique tag so listings can be scoped to this test.
func (tc *repoTestContext) post(author uuid.UUID, status models.PostStatus, embedding []float32, tags ...string) *models.Post {
	tc.t.Helper()
	p := &models.Post{
		AuthorID:  author,
		Type:      models.PostTypeSolution,
		Title:     "title " + uuid.NewString()[:8],
		Content:   "content",
		Tags:      tags,
		Embedding: embedding,
		Status:    status,
	}
	require.NoError(tc.t, tc.posts.Create(tc.ctx(), p))
	return p
}

// inTx runs fn in a transaction on its own pooled connection.
// Safe to call from concurrent goroutines.
func (tc *repoTestContext) inTx(fn func(ctx context.Context) error) error {
	return tc.engineDB.DB.InTx(context.Background(), fn)
}

// unitVector returns a 1536-dim vector with a single hot component.
func unitVector(hot int) []float32 {
	v := make([]float32, 1536)
	v[hot] = 1
	return v
}

