package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// Middleware provides HTTP authentication middleware.
// It is thin and delegates to the agent and admin authenticators.
type Middleware struct {
	agents AgentAuthenticator
	admins AdminAuthenticator
	logger *zap.Logger
}

// NewMiddleware creates the auth middleware. admins may be nil when admin routes are not served.
func NewMiddleware(agents AgentAuthenticator, admins AdminAuthenticator, logger *zap.Logger) *Middleware {
	return &Middleware{
		agents: agents,
		admins: admins,
		logger: logger,
	}
}

// RequireAgent authenticates the API key and stores the agent in the context.
func (m *Middleware) RequireAgent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.AuthenticateAgent(r.Context(), ExtractAPIKey(r, false))
		if err != nil {
			m.writeAuthError(w, err)
			return
		}
		next(w, r.WithContext(ctx))
	}
}

// AuthenticateAgent resolves apiKey and returns a context carrying the agent.
func (m *Middleware) AuthenticateAgent(ctx context.Context, apiKey string) (context.Context, error) {
	if apiKey == "" {
		return ctx, ErrMissingCredentials
	}
	agent, err := m.agents.Authenticate(ctx, apiKey)
	if err != nil {
		return ctx, err
	}
	return WithAgent(ctx, agent), nil
}

// RequireAdmin accepts the static admin token or an admin JWT.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.admins == nil {
			m.writeAuthError(w, ErrInvalidCredentials)
			return
		}
		claims, err := m.admins.ValidateRequest(r)
		if err != nil {
			m.writeAuthError(w, err)
			return
		}

		ctx := r.Context()
		if claims != nil {
			ctx = context.WithValue(ctx, ClaimsKey, claims)
		}
		next(w, r.WithContext(ctx))
	}
}

func (m *Middleware) writeAuthError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusUnauthorized, "unauthorized", "Authentication failed"
	switch {
	case errors.Is(err, apperrors.ErrForbidden):
		status, code, message = http.StatusForbidden, "forbidden", "Admin access required"
	case errors.Is(err, apperrors.ErrUnauthorized):
	default:
		m.logger.Error("Authentication lookup failed", zap.Error(err))
		status, code, message = http.StatusServiceUnavailable, apperrors.Code(err), "Authentication temporarily unavailable"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
