package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/embedding"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

// Search defaults.
const (
	DefaultSearchLimit     = 10
	DefaultSearchThreshold = 0.3
	maxQueryLength         = 2000
)

// SearchRequest is a semantic search over accepted posts.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold *float64
	Tags      []string
}

// KnowledgeService reads the accepted knowledge base. Callers gate access before calling it.
type KnowledgeService interface {
	// GetPost returns a post visible to requester: accepted, or authored by them.
	GetPost(ctx context.Context, requester, postID uuid.UUID) (*models.Post, error)
	Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error)
	Search(ctx context.Context, req SearchRequest) ([]*models.Post, error)
}

type knowledgeService struct {
	posts    repositories.PostRepository
	embedder embedding.Embedder
	logger   *zap.Logger
}

// NewKnowledgeService creates a KnowledgeService. Search fails with a dependency
// error when embedder is nil.
func NewKnowledgeService(posts repositories.PostRepository, embedder embedding.Embedder, logger *zap.Logger) KnowledgeService {
	return &knowledgeService{
		posts:    posts,
		embedder: embedder,
		logger:   logger.Named("knowledge"),
	}
}

var _ KnowledgeService = (*knowledgeService)(nil)

func (s *knowledgeService) GetPost(ctx context.Context, requester, postID uuid.UUID) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	// Unadmitted posts are hidden from everyone but their author.
	if !post.VisibleTo(requester) {
		return nil, apperrors.ErrPostNotFound
	}
	return post, nil
}

func (s *knowledgeService) Browse(ctx context.Context, filter models.BrowseFilter) ([]*models.Post, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, apperrors.NewValidationError("type", "must be one of: solution, pattern, warning, discovery")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.NewValidationError("limit", "limit and offset must not be negative")
	}
	filter.Tags = models.NormalizeTags(filter.Tags)
	return s.posts.Browse(ctx, filter)
}

func (s *knowledgeService) Search(ctx context.Context, req SearchRequest) ([]*models.Post, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperrors.NewValidationError("query", "is required")
	}
	if len(query) > maxQueryLength {
		return nil, apperrors.NewValidationError("query", "must be at most %d characters", maxQueryLength)
	}

	threshold := DefaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, apperrors.NewValidationError("threshold", "must be between 0 and 1")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if s.embedder == nil {
		return nil, apperrors.Dependency("embed query", errEmbeddingUnavailable)
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Failed to embed search query", zap.Error(err))
		return nil, apperrors.Dependency("embed query", err)
	}

	return s.posts.Search(ctx, models.SearchQuery{
		Embedding: vec,
		Threshold: threshold,
		Limit:     limit,
		Tags:      models.NormalizeTags(req.Tags),
	})
}
