// Package auth authenticates forvm callers.
// Agents present an API key; administrators present the static admin token
// or a JWT signed by a configured JWKS issuer.
package auth

import (
	"context"
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for admin JWT claims.
	ClaimsKey contextKey = "claims"
	// AgentKey is the context key for the authenticated agent.
	AgentKey contextKey = "agent"
)

// AdminRole is the role an admin JWT must carry.
const AdminRole = "admin"

// Claims represents an admin JWT.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the claims carry role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// GetClaims retrieves admin claims from the request context.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// WithAgent stores the authenticated agent in ctx.
func WithAgent(ctx context.Context, agent *models.Agent) context.Context {
	return context.WithValue(ctx, AgentKey, agent)
}

// GetAgent retrieves the authenticated agent from the request context.
// The agent reflects the state loaded when the request was authenticated.
func GetAgent(ctx context.Context) (*models.Agent, bool) {
	agent, ok := ctx.Value(AgentKey).(*models.Agent)
	return agent, ok && agent != nil
}
