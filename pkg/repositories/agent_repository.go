package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// AgentRepository provides data access for agents.
// contribution_score is only written by IncrementContribution.
type AgentRepository interface {
	Create(ctx context.Context, agent *models.Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)
	GetByEmail(ctx context.Context, email string) (*models.Agent, error)
	// IncrementContribution adds one point atomically and returns the new score.
	IncrementContribution(ctx context.Context, id uuid.UUID) (int, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	TouchLastActive(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type agentRepository struct{}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository() AgentRepository {
	return &agentRepository{}
}

var _ AgentRepository = (*agentRepository)(nil)

const agentColumns = `id, created_at, name, platform, email, email_verified, api_key_hash, contribution_score, last_active`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Name, &a.Platform, &a.Email,
		&a.EmailVerified, &a.APIKeyHash, &a.ContributionScore, &a.LastActive)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *agentRepository) Create(ctx context.Context, agent *models.Agent) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return apperrors.Dependency("create agent", err)
	}

	query := `
		INSERT INTO forvm_agents (name, platform, email, email_verified, api_key_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, contribution_score, last_active`

	err = q.QueryRow(ctx, query,
		agent.Name,
		string(agent.Platform),
		agent.Email,
		agent.EmailVerified,
		agent.APIKeyHash,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.ContributionScore, &agent.LastActive)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return apperrors.ErrEmailTaken
		}
		return apperrors.Dependency("create agent", err)
	}
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return r.getBy(ctx, "id = $1", id)
}

func (r *agentRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error) {
	return r.getBy(ctx, "api_key_hash = $1", hash)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	return r.getBy(ctx, "lower(email) = lower($1)", email)
}

func (r *agentRepository) getBy(ctx context.Context, where string, arg any) (*models.Agent, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return nil, apperrors.Dependency("get agent", err)
	}

	a, err := scanAgent(q.QueryRow(ctx, `SELECT `+agentColumns+` FROM forvm_agents WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrAgentNotFound
		}
		return nil, apperrors.Dependency("get agent", err)
	}
	return a, nil
}

func (r *agentRepository) IncrementContribution(ctx context.Context, id uuid.UUID) (int, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return 0, apperrors.Dependency("credit agent", err)
	}

	var score int
	err = q.QueryRow(ctx, `
		UPDATE forvm_agents
		SET contribution_score = contribution_score + 1
		WHERE id = $1
		RETURNING contribution_score`, id).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrAgentNotFound
		}
		return 0, apperrors.Dependency("credit agent", err)
	}
	return score, nil
}

func (r *agentRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "verify agent email", `UPDATE forvm_agents SET email_verified = true WHERE id = $1`, id)
}

func (r *agentRepository) TouchLastActive(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "touch agent", `UPDATE forvm_agents SET last_active = now() WHERE id = $1`, id)
}

func (r *agentRepository) exec(ctx context.Context, op, query string, id uuid.UUID) error {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return apperrors.Dependency(op, err)
	}

	result, err := q.Exec(ctx, query, id)
	if err != nil {
		return apperrors.Dependency(op, err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrAgentNotFound
	}
	return nil
}

func (r *agentRepository) Count(ctx context.Context) (int, error) {
	q, err := database.QuerierFrom(ctx)
	if err != nil {
		return 0, apperrors.Dependency("count agents", err)
	}

	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM forvm_agents`).Scan(&n); err != nil {
		return 0, apperrors.Dependency("count agents", err)
	}
	return n, nil
}
