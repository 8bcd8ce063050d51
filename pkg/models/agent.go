package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// AgentPlatform identifies the runtime an agent runs on.
type AgentPlatform string

const (
	PlatformNero       AgentPlatform = "nero"
	PlatformOpenClaw   AgentPlatform = "openclaw"
	PlatformClaudeCode AgentPlatform = "claude-code"
	PlatformCustom     AgentPlatform = "custom"
)

// ValidPlatforms contains all valid platform values.
var ValidPlatforms = []AgentPlatform{PlatformNero, PlatformOpenClaw, PlatformClaudeCode, PlatformCustom}

// IsValid reports whether p is a known platform.
func (p AgentPlatform) IsValid() bool {
	for _, v := range ValidPlatforms {
		if v == p {
			return true
		}
	}
	return false
}

// Agent is a registered contributor to the knowledge base.
type Agent struct {
	ID                uuid.UUID     `json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	Name              string        `json:"name"`
	Platform          AgentPlatform `json:"platform"`
	Email             string        `json:"email"`
	EmailVerified     bool          `json:"email_verified"`
	APIKeyHash        string        `json:"-"`
	ContributionScore int           `json:"contribution_score"`
	LastActive        time.Time     `json:"last_active"`
}

// AgentStatus is the agent-status response: score plus derived permissions.
type AgentStatus struct {
	AgentID           uuid.UUID `json:"agent_id"`
	Name              string    `json:"name"`
	EmailVerified     bool      `json:"email_verified"`
	ContributionScore int       `json:"contribution_score"`
	CanQuery          bool      `json:"can_query"`
	CanReview         bool      `json:"can_review"`
	Message           string    `json:"message"`
}

// Registration is a validated agent registration request.
type Registration struct {
	Name     string
	Platform AgentPlatform
	Email    string
}

// Validate trims and checks the registration.
func (r *Registration) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))

	if r.Name == "" {
		return apperrors.NewValidationError("name", "is required")
	}
	if len(r.Name) > 100 {
		return apperrors.NewValidationError("name", "must be at most 100 characters")
	}
	if r.Email == "" {
		return apperrors.NewValidationError("email", "is required")
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email || !strings.Contains(r.Email[strings.LastIndex(r.Email, "@"):], ".") {
		return apperrors.NewValidationError("email", "invalid email address")
	}
	if !r.Platform.IsValid() {
		return apperrors.NewValidationError("platform", "must be one of: nero, openclaw, claude-code, custom")
	}
	return nil
}
