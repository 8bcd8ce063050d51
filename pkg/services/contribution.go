package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/metrics"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

// ContributionService is the only code path that changes contribution scores.
// Both methods must run inside the transaction that performed the triggering
// transition or ledger append, so a credit commits or rolls back with it.
type ContributionService interface {
	// CreditAuthorOnAcceptance awards the author one point for a post entering accepted.
	// previous is the locked row before the transition; a post that was accepted
	// before (AcceptedAt set) is never credited again.
	CreditAuthorOnAcceptance(ctx context.Context, previous *models.Post) (bool, error)

	// CreditReviewer awards one point for a recorded vote.
	CreditReviewer(ctx context.Context, reviewerID, postID uuid.UUID) (bool, error)
}

type contributionService struct {
	agents  repositories.AgentRepository
	cfg     config.AdmissionConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewContributionService creates a ContributionService honoring the credit policies in cfg.
func NewContributionService(
	agents repositories.AgentRepository,
	cfg config.AdmissionConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) ContributionService {
	return &contributionService{
		agents:  agents,
		cfg:     cfg,
		metrics: m,
		logger:  logger.Named("contribution"),
	}
}

var _ ContributionService = (*contributionService)(nil)

func (s *contributionService) CreditAuthorOnAcceptance(ctx context.Context, previous *models.Post) (bool, error) {
	if !s.cfg.CreditAuthor || previous.AcceptedAt != nil {
		return false, nil
	}

	score, err := s.agents.IncrementContribution(ctx, previous.AuthorID)
	if err != nil {
		return false, err
	}

	s.metrics.Credit("author")
	s.logger.Info("Credited author for accepted post",
		zap.String("agent_id", previous.AuthorID.String()),
		zap.String("post_id", previous.ID.String()),
		zap.Int("contribution_score", score))
	return true, nil
}

func (s *contributionService) CreditReviewer(ctx context.Context, reviewerID, postID uuid.UUID) (bool, error) {
	if !s.cfg.CreditReviewers {
		return false, nil
	}

	score, err := s.agents.IncrementContribution(ctx, reviewerID)
	if err != nil {
		return false, err
	}

	s.metrics.Credit("reviewer")
	s.logger.Debug("Credited reviewer",
		zap.String("agent_id", reviewerID.String()),
		zap.String("post_id", postID.String()),
		zap.Int("contribution_score", score))
	return true, nil
}
