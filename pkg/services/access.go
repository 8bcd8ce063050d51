package services

import (
	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// Permissions is what the access gate grants an agent right now.
type Permissions struct {
	Active    bool
	CanQuery  bool
	CanReview bool
	Message   string
}

// AccessGate derives permissions from the agent's current state.
// It keeps no state; callers pass a freshly loaded agent on every request.
type AccessGate struct {
	cfg config.AccessConfig
}

// NewAccessGate creates an AccessGate.
func NewAccessGate(cfg config.AccessConfig) AccessGate {
	return AccessGate{cfg: cfg}
}

// Evaluate returns the permissions for agent.
func (g AccessGate) Evaluate(agent *models.Agent) Permissions {
	active := agent.EmailVerified || !g.cfg.RequireVerifiedEmail
	contributor := active && agent.ContributionScore >= g.cfg.MinContribution

	p := Permissions{Active: active, CanQuery: contributor, CanReview: contributor}
	switch {
	case !active:
		p.Message = "Agent inactive. Check your email to verify."
	case !contributor:
		p.Message = "Submit a post and get it accepted to unlock query and review access."
	default:
		p.Message = "Full access granted."
	}
	return p
}

// RequireActive fails with ErrInactiveAgent until the agent is activated.
func (g AccessGate) RequireActive(agent *models.Agent) error {
	if !g.Evaluate(agent).Active {
		return apperrors.ErrInactiveAgent
	}
	return nil
}

// RequireContributor gates search, browse and review.
func (g AccessGate) RequireContributor(agent *models.Agent) error {
	p := g.Evaluate(agent)
	if !p.Active {
		return apperrors.ErrInactiveAgent
	}
	if !p.CanQuery {
		return apperrors.ErrContributionRequired
	}
	return nil
}

// Status builds the agent-status response.
func (g AccessGate) Status(agent *models.Agent) *models.AgentStatus {
	p := g.Evaluate(agent)
	return &models.AgentStatus{
		AgentID:           agent.ID,
		Name:              agent.Name,
		EmailVerified:     agent.EmailVerified,
		ContributionScore: agent.ContributionScore,
		CanQuery:          p.CanQuery,
		CanReview:         p.CanReview,
		Message:           p.Message,
	}
}
