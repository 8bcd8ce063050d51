package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/embedding"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

var errEmbeddingUnavailable = errors.New("embedding provider not configured")

// BackfillResult summarizes one backfill run.
type BackfillResult struct {
	Scanned  int `json:"scanned"`
	Embedded int `json:"embedded"`
	Failed   int `json:"failed"`
}

// EmbeddingBackfill fills in embeddings for posts stored while the provider was down.
type EmbeddingBackfill struct {
	posts    repositories.PostRepository
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewEmbeddingBackfill creates an EmbeddingBackfill.
func NewEmbeddingBackfill(posts repositories.PostRepository, embedder embedding.Embedder, logger *zap.Logger) *EmbeddingBackfill {
	return &EmbeddingBackfill{
		posts:    posts,
		embedder: embedder,
		logger:   logger.Named("backfill"),
	}
}

// Run processes posts with a NULL embedding, oldest first, in batches of batchSize.
// Posts that fail stay NULL and are skipped for the rest of the run.
// Storage errors and context cancellation stop the run.
func (b *EmbeddingBackfill) Run(ctx context.Context, batchSize int) (BackfillResult, error) {
	var result BackfillResult
	if b.embedder == nil {
		return result, errEmbeddingUnavailable
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	failed := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Failed posts stay at the head of the queue, so widen the window past them.
		batch, err := b.posts.ListMissingEmbeddings(ctx, batchSize+len(failed))
		if err != nil {
			return result, err
		}

		progressed := false
		for _, post := range batch {
			if _, skip := failed[post.ID.String()]; skip {
				continue
			}
			result.Scanned++
			progressed = true

			vec, err := b.embedder.Embed(ctx, embedding.PostText(post.Title, post.Content, post.Tags))
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				result.Failed++
				failed[post.ID.String()] = struct{}{}
				b.logger.Warn("Failed to embed post",
					zap.String("post_id", post.ID.String()),
					zap.Error(err))
				continue
			}

			if err := b.posts.SetEmbedding(ctx, post.ID, vec); err != nil {
				return result, err
			}
			result.Embedded++
		}

		if !progressed {
			break
		}
	}

	b.logger.Info("Embedding backfill finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("embedded", result.Embedded),
		zap.Int("failed", result.Failed))
	return result, nil
}
