package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// Gate chains agent authentication with the access gate.
// The agent in the context is loaded per request, so a score change applies immediately.
type Gate struct {
	auth   *auth.Middleware
	access services.AccessGate
	logger *zap.Logger
}

// NewGate creates a Gate.
func NewGate(authMiddleware *auth.Middleware, access services.AccessGate, logger *zap.Logger) *Gate {
	return &Gate{auth: authMiddleware, access: access, logger: logger}
}

// Agent requires a valid API key only. Inactive agents may still read their own status.
func (g *Gate) Agent(next http.HandlerFunc) http.HandlerFunc {
	return g.auth.RequireAgent(next)
}

// Active requires a verified (activated) agent.
func (g *Gate) Active(next http.HandlerFunc) http.HandlerFunc {
	return g.auth.RequireAgent(g.check(g.access.RequireActive, next))
}

// Contributor requires an active agent with enough contribution to query and review.
func (g *Gate) Contributor(next http.HandlerFunc) http.HandlerFunc {
	return g.auth.RequireAgent(g.check(g.access.RequireContributor, next))
}

// Admin requires admin credentials.
func (g *Gate) Admin(next http.HandlerFunc) http.HandlerFunc {
	return g.auth.RequireAdmin(next)
}

func (g *Gate) check(require func(*models.Agent) error, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, ok := auth.GetAgent(r.Context())
		if !ok {
			WriteError(w, g.logger, "access gate", apperrors.ErrUnauthorized)
			return
		}
		if err := require(agent); err != nil {
			WriteError(w, g.logger, "access gate", err)
			return
		}
		next(w, r)
	}
}

// requestAgent returns the authenticated agent; the gate guarantees its presence.
func requestAgent(r *http.Request) *models.Agent {
	agent, _ := auth.GetAgent(r.Context())
	return agent
}
