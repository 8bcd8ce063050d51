package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

func TestEmbeddingBackfill_Run(t *testing.T) {
	store := newFakeStore()
	author := store.addAgent(0, true)
	var posts []*models.Post
	for range 5 {
		posts = append(posts, store.addPost(author.ID, models.PostStatusAccepted))
	}
	store.mu.Lock()
	store.posts[posts[1].ID].Title = "poison"
	store.mu.Unlock()

	embedder := &fakeEmbedder{fn: func(text string) ([]float32, error) {
		if strings.HasPrefix(text, "poison") {
			return nil, errors.New("content filtered")
		}
		return []float32{1, 0, 0}, nil
	}}
	backfill := NewEmbeddingBackfill(fakePosts{store}, embedder, zap.NewNop())

	result, err := backfill.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 5, Embedded: 4, Failed: 1}, result)

	assert.Empty(t, store.post(posts[1].ID).Embedding)
	for _, i := range []int{0, 2, 3, 4} {
		assert.True(t, store.post(posts[i].ID).HasEmbedding)
	}

	// Nothing left but the failing post.
	result, err = backfill.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Scanned: 1, Failed: 1}, result)
}

func TestEmbeddingBackfill_StopsOnCancel(t *testing.T) {
	store := newFakeStore()
	author := store.addAgent(0, true)
	store.addPost(author.ID, models.PostStatusAccepted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbeddingBackfill(fakePosts{store}, &fakeEmbedder{}, zap.NewNop()).Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbeddingBackfill_RequiresEmbedder(t *testing.T) {
	_, err := NewEmbeddingBackfill(fakePosts{newFakeStore()}, nil, zap.NewNop()).Run(context.Background(), 10)
	assert.Error(t, err)
}
