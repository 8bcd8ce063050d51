package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
)

// RegisteredAgent is the result of a registration. APIKey is shown exactly once.
type RegisteredAgent struct {
	Agent  *models.Agent `json:"agent"`
	APIKey string        `json:"api_key"`
}

// AgentService manages agent identity: registration, activation and API-key authentication.
type AgentService interface {
	Register(ctx context.Context, reg models.Registration) (*RegisteredAgent, error)
	// Authenticate resolves an API key and records the agent as active.
	Authenticate(ctx context.Context, apiKey string) (*models.Agent, error)
	VerifyEmail(ctx context.Context, token string) (*models.Agent, error)
	// ResendVerification issues a new token. It does not reveal whether the email is registered.
	ResendVerification(ctx context.Context, email string) error
	Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error)
	// Status reloads the agent and evaluates the access gate against its current score.
	Status(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error)
}

type agentService struct {
	agents  repositories.AgentRepository
	tokens  *auth.VerificationTokens
	email   EmailSender
	gate    AccessGate
	baseURL string
	logger  *zap.Logger
}

// NewAgentService creates an AgentService. tokens may be nil when email verification is
// not required, in which case no verification mail is sent.
func NewAgentService(
	agents repositories.AgentRepository,
	tokens *auth.VerificationTokens,
	email EmailSender,
	gate AccessGate,
	baseURL string,
	logger *zap.Logger,
) AgentService {
	return &agentService{
		agents:  agents,
		tokens:  tokens,
		email:   email,
		gate:    gate,
		baseURL: baseURL,
		logger:  logger.Named("agents"),
	}
}

var (
	_ AgentService            = (*agentService)(nil)
	_ auth.AgentAuthenticator = (*agentService)(nil)
)

func (s *agentService) Register(ctx context.Context, reg models.Registration) (*RegisteredAgent, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, err
	}

	agent := &models.Agent{
		Name:       reg.Name,
		Platform:   reg.Platform,
		Email:      reg.Email,
		APIKeyHash: auth.HashAPIKey(apiKey),
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	s.logger.Info("Agent registered",
		zap.String("agent_id", agent.ID.String()),
		zap.String("platform", string(agent.Platform)))

	// A failed send leaves the agent registered; the agent can ask for a resend.
	if err := s.sendVerification(ctx, agent); err != nil {
		s.logger.Warn("Failed to send verification email",
			zap.String("agent_id", agent.ID.String()),
			zap.Error(err))
	}

	return &RegisteredAgent{Agent: agent, APIKey: apiKey}, nil
}

func (s *agentService) sendVerification(ctx context.Context, agent *models.Agent) error {
	if s.tokens == nil || s.email == nil {
		return nil
	}
	token, err := s.tokens.Issue(agent.ID, agent.Email)
	if err != nil {
		return err
	}
	return s.email.SendVerification(ctx, agent.Email, agent.Name, verificationLink(s.baseURL, token))
}

func (s *agentService) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	agent, err := s.agents.GetByAPIKeyHash(ctx, auth.HashAPIKey(apiKey))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.agents.TouchLastActive(ctx, agent.ID); err != nil {
		s.logger.Warn("Failed to update last_active",
			zap.String("agent_id", agent.ID.String()),
			zap.Error(err))
	}
	return agent, nil
}

func (s *agentService) VerifyEmail(ctx context.Context, token string) (*models.Agent, error) {
	if s.tokens == nil {
		return nil, apperrors.NewValidationError("token", "email verification is disabled")
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	agentID, err := claims.AgentID()
	if err != nil {
		return nil, auth.ErrInvalidVerificationToken
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	// A token for an address the agent no longer holds is stale.
	if agent.Email != claims.Email {
		return nil, auth.ErrInvalidVerificationToken
	}
	if agent.EmailVerified {
		return agent, nil
	}

	if err := s.agents.MarkEmailVerified(ctx, agentID); err != nil {
		return nil, err
	}
	agent.EmailVerified = true

	s.logger.Info("Agent email verified", zap.String("agent_id", agentID.String()))
	return agent, nil
}

func (s *agentService) ResendVerification(ctx context.Context, email string) error {
	reg := models.Registration{Name: "-", Platform: models.PlatformCustom, Email: email}
	if err := reg.Validate(); err != nil {
		return err
	}

	agent, err := s.agents.GetByEmail(ctx, reg.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if agent.EmailVerified {
		return apperrors.NewValidationError("email", "Email already verified")
	}

	if err := s.sendVerification(ctx, agent); err != nil {
		return apperrors.Dependency("send verification", err)
	}
	return nil
}

func (s *agentService) Get(ctx context.Context, agentID uuid.UUID) (*models.Agent, error) {
	return s.agents.GetByID(ctx, agentID)
}

func (s *agentService) Status(ctx context.Context, agentID uuid.UUID) (*models.AgentStatus, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return s.gate.Status(agent), nil
}
