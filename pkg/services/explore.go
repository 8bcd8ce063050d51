package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

const (
	exploreDefaultLimit = 20
	exploreMaxLimit     = 50
	popularTagsLimit    = 20
)

// ExploreService serves the public, unauthenticated view of accepted knowledge.
// Unlike KnowledgeService it is not gated on contribution.
type ExploreService interface {
	List(ctx context.Context, filter models.ExploreFilter) (*models.ExplorePage, error)
	Get(ctx context.Context, postID uuid.UUID) (*models.PostWithAuthor, error)
	PopularTags(ctx context.Context) ([]models.TagCount, error)
}

type exploreService struct {
	posts  repositories.PostRepository
	logger *zap.Logger
}

// NewExploreService creates an ExploreService.
func NewExploreService(posts repositories.PostRepository, logger *zap.Logger) ExploreService {
	return &exploreService{
		posts:  posts,
		logger: logger.Named("explore"),
	}
}

var _ ExploreService = (*exploreService)(nil)

func (s *exploreService) List(ctx context.Context, filter models.ExploreFilter) (*models.ExplorePage, error) {
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, apperrors.NewValidationError("type", "must be one of: solution, pattern, warning, discovery")
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.NewValidationError("limit", "limit and offset must not be negative")
	}
	if filter.Limit == 0 {
		filter.Limit = exploreDefaultLimit
	}
	filter.Limit = min(filter.Limit, exploreMaxLimit)
	filter.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))

	posts, total, err := s.posts.Explore(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.ExplorePage{
		Posts:   posts,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		HasMore: filter.Offset+filter.Limit < total,
	}, nil
}

func (s *exploreService) Get(ctx context.Context, postID uuid.UUID) (*models.PostWithAuthor, error) {
	return s.posts.GetAccepted(ctx, postID)
}

func (s *exploreService) PopularTags(ctx context.Context) ([]models.TagCount, error) {
	return s.posts.PopularTags(ctx, popularTagsLimit)
}
