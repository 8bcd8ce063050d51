package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/embedding"
	"github.com/ekaya-inc/forvm-engine/pkg/metrics"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

const defaultAdminListLimit = 50

// AdmissionService owns the post lifecycle: pending -> in_review -> accepted | rejected.
// Every status change and every tally update goes through it.
type AdmissionService interface {
	// CreatePost stores a new pending post, or an in_review post when auto-submit is on.
	CreatePost(ctx context.Context, post models.NewPost) (*models.Post, error)

	// SubmitForReview moves a pending post into review.
	SubmitForReview(ctx context.Context, postID uuid.UUID) (*models.Post, error)

	// PendingForReview returns in-review posts the agent may still vote on, oldest first.
	PendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error)

	// RecordReview appends a vote to the ledger, updates the tally and applies the quorum rule.
	RecordReview(ctx context.Context, review models.NewReview) (*models.ReviewOutcome, error)

	// Approve accepts a post regardless of its tally.
	Approve(ctx context.Context, postID uuid.UUID) (*models.Post, error)

	// Reject rejects a post regardless of its tally.
	Reject(ctx context.Context, postID uuid.UUID, reason string) (*models.Post, error)

	// ListPending returns posts awaiting submission, oldest first.
	ListPending(ctx context.Context, limit int) ([]*models.PostWithAuthor, error)

	// PendingStats summarizes the admin queue.
	PendingStats(ctx context.Context) (*models.PendingStats, error)
}

type admissionService struct {
	tx           database.TxRunner
	posts        repositories.PostRepository
	reviews      repositories.ReviewRepository
	contribution ContributionService
	embedder     embedding.Embedder
	quorum       QuorumRule
	cfg          config.AdmissionConfig
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewAdmissionService creates an AdmissionService. embedder may be nil, in which case
// posts are stored without embeddings and picked up later by the backfill.
func NewAdmissionService(
	tx database.TxRunner,
	posts repositories.PostRepository,
	reviews repositories.ReviewRepository,
	contribution ContributionService,
	embedder embedding.Embedder,
	cfg config.AdmissionConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) AdmissionService {
	return &admissionService{
		tx:           tx,
		posts:        posts,
		reviews:      reviews,
		contribution: contribution,
		embedder:     embedder,
		quorum:       NewQuorumRule(cfg),
		cfg:          cfg,
		metrics:      m,
		logger:       logger.Named("admission"),
	}
}

var _ AdmissionService = (*admissionService)(nil)

// ============================================================================
// Creation and submission
// ============================================================================

func (s *admissionService) CreatePost(ctx context.Context, np models.NewPost) (*models.Post, error) {
	if err := np.Validate(); err != nil {
		return nil, err
	}

	post := &models.Post{
		AuthorID: np.AuthorID,
		Type:     np.Type,
		Title:    np.Title,
		Content:  np.Content,
		Tags:     np.Tags,
		Status:   models.PostStatusPending,
	}

	// Embed outside the transaction so a slow provider never holds a connection.
	post.Embedding = s.embed(ctx, embedding.PostText(np.Title, np.Content, np.Tags))

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.posts.Create(ctx, post); err != nil {
			return err
		}
		if !s.cfg.AutoSubmit {
			return nil
		}
		submitted, err := s.posts.TransitionStatus(ctx, post.ID,
			[]models.PostStatus{models.PostStatusPending}, models.PostStatusInReview)
		if err != nil {
			return err
		}
		post.Status = submitted.Status
		return nil
	})
	if err != nil {
		return nil, apperrors.Dependency("create post", err)
	}

	s.metrics.PostCreated()
	s.logger.Info("Post created",
		zap.String("post_id", post.ID.String()),
		zap.String("author_id", post.AuthorID.String()),
		zap.String("type", string(post.Type)),
		zap.String("status", string(post.Status)),
		zap.Bool("has_embedding", post.HasEmbedding))
	return post, nil
}

// embed returns nil when no embedder is configured or the provider fails.
func (s *admissionService) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.metrics.EmbeddingFailure()
		s.logger.Warn("Embedding failed, storing post without embedding", zap.Error(err))
		return nil
	}
	return vec
}

func (s *admissionService) SubmitForReview(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	var post *models.Post
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.posts.GetForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if current.Status != models.PostStatusPending {
			return fmt.Errorf("%w: post is %s", apperrors.ErrInvalidTransition, current.Status)
		}
		post, err = s.posts.TransitionStatus(ctx, postID,
			[]models.PostStatus{models.PostStatusPending}, models.PostStatusInReview)
		return err
	})
	if err != nil {
		return nil, apperrors.Dependency("submit post", err)
	}

	s.logger.Info("Post submitted for review", zap.String("post_id", postID.String()))
	return post, nil
}

func (s *admissionService) PendingForReview(ctx context.Context, agentID uuid.UUID, limit int) ([]*models.Post, error) {
	if limit <= 0 || limit > s.cfg.ReviewQueueLimit {
		limit = s.cfg.ReviewQueueLimit
	}
	return s.posts.ListPendingForReview(ctx, agentID, limit)
}

// ============================================================================
// Voting
// ============================================================================

func (s *admissionService) RecordReview(ctx context.Context, nr models.NewReview) (*models.ReviewOutcome, error) {
	vote, err := models.ParseVote(string(nr.Vote))
	if err != nil {
		return nil, err
	}
	nr.Vote = vote
	if err := nr.Validate(); err != nil {
		return nil, err
	}

	var (
		outcome  *models.ReviewOutcome
		decision Decision
		credited bool
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		// The row lock serializes votes on one post; votes on other posts proceed.
		post, err := s.posts.GetForUpdate(ctx, nr.PostID)
		if err != nil {
			return err
		}

		if post.AuthorID == nr.ReviewerID {
			return apperrors.ErrSelfReview
		}
		exists, err := s.reviews.Exists(ctx, nr.ReviewerID, nr.PostID)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.ErrDuplicateReview
		}
		if !post.Status.IsOpenForReview() {
			return apperrors.ErrPostNotOpenForReview
		}

		review := &models.Review{
			PostID:     nr.PostID,
			ReviewerID: nr.ReviewerID,
			Vote:       nr.Vote,
		}
		if nr.Feedback != "" {
			review.Feedback = &nr.Feedback
		}
		if err := s.reviews.Create(ctx, review); err != nil {
			return err
		}

		outcome = &models.ReviewOutcome{
			Review:     review,
			PostStatus: post.Status,
			Tally:      post.Tally(),
		}

		if nr.Vote.Counts() {
			tally, err := s.posts.IncrementTally(ctx, nr.PostID, nr.Vote)
			if err != nil {
				return err
			}
			outcome.Tally = tally

			decision = s.quorum.Evaluate(tally)
			if decision.Terminal() {
				updated, err := s.posts.TransitionStatus(ctx, nr.PostID,
					[]models.PostStatus{models.PostStatusInReview}, decision.TargetStatus())
				if err != nil {
					return err
				}
				outcome.PostStatus = updated.Status
				outcome.Decided = true

				if decision.Outcome == OutcomeAccept {
					if credited, err = s.contribution.CreditAuthorOnAcceptance(ctx, post); err != nil {
						return err
					}
				}
			}
		}

		_, err = s.contribution.CreditReviewer(ctx, nr.ReviewerID, nr.PostID)
		return err
	})
	if err != nil {
		return nil, apperrors.Dependency("record review", err)
	}

	s.metrics.VoteRecorded(string(nr.Vote))
	s.logger.Info("Review recorded",
		zap.String("post_id", nr.PostID.String()),
		zap.String("reviewer_id", nr.ReviewerID.String()),
		zap.String("vote", string(nr.Vote)),
		zap.Int("review_count", outcome.Tally.Reviews),
		zap.Int("accept_count", outcome.Tally.Accepts),
		zap.Int("reject_count", outcome.Tally.Rejects))

	if outcome.Decided {
		s.metrics.Decision(string(outcome.PostStatus), decision.Path)
		s.logger.Info("Post decided",
			zap.String("post_id", nr.PostID.String()),
			zap.String("status", string(outcome.PostStatus)),
			zap.String("path", decision.Path),
			zap.Bool("author_credited", credited))
	}
	return outcome, nil
}

// ============================================================================
// Administrative override
// ============================================================================

func (s *admissionService) Approve(ctx context.Context, postID uuid.UUID) (*models.Post, error) {
	var (
		post     *models.Post
		credited bool
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.posts.GetForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if current.Status == models.PostStatusAccepted {
			return apperrors.ErrAlreadyAccepted
		}

		post, err = s.posts.TransitionStatus(ctx, postID,
			[]models.PostStatus{models.PostStatusPending, models.PostStatusInReview, models.PostStatusRejected},
			models.PostStatusAccepted)
		if err != nil {
			return err
		}

		credited, err = s.contribution.CreditAuthorOnAcceptance(ctx, current)
		return err
	})
	if err != nil {
		return nil, apperrors.Dependency("approve post", err)
	}

	s.metrics.Decision(string(models.PostStatusAccepted), PathAdmin)
	s.logger.Info("Post approved by admin",
		zap.String("post_id", postID.String()),
		zap.Bool("author_credited", credited))
	return post, nil
}

func (s *admissionService) Reject(ctx context.Context, postID uuid.UUID, reason string) (*models.Post, error) {
	var post *models.Post
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.posts.GetForUpdate(ctx, postID)
		if err != nil {
			return err
		}
		if current.Status == models.PostStatusRejected {
			return apperrors.ErrAlreadyRejected
		}

		post, err = s.posts.TransitionStatus(ctx, postID,
			[]models.PostStatus{models.PostStatusPending, models.PostStatusInReview, models.PostStatusAccepted},
			models.PostStatusRejected)
		return err
	})
	if err != nil {
		return nil, apperrors.Dependency("reject post", err)
	}

	// Contribution scores only grow: rejecting an accepted post keeps the author's point.
	s.metrics.Decision(string(models.PostStatusRejected), PathAdmin)
	s.logger.Info("Post rejected by admin",
		zap.String("post_id", postID.String()),
		zap.String("reason", reason))
	return post, nil
}

// ============================================================================
// Admin listings
// ============================================================================

func (s *admissionService) ListPending(ctx context.Context, limit int) ([]*models.PostWithAuthor, error) {
	if limit <= 0 {
		limit = defaultAdminListLimit
	}
	return s.posts.ListByStatus(ctx, models.PostStatusPending, limit)
}

func (s *admissionService) PendingStats(ctx context.Context) (*models.PendingStats, error) {
	counts, err := s.posts.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byType, err := s.posts.CountByType(ctx, models.PostStatusPending)
	if err != nil {
		return nil, err
	}
	return &models.PendingStats{
		Pending:       counts[models.PostStatusPending],
		InReview:      counts[models.PostStatusInReview],
		PendingByType: byType,
	}, nil
}
