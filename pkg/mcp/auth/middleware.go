// Package mcpauth provides MCP-specific authentication middleware.
// It wraps agent API-key authentication with RFC 6750 Bearer token error responses.
package mcpauth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
)

// AgentAuthenticator resolves an API key into a context carrying the agent.
// *auth.Middleware satisfies it.
type AgentAuthenticator interface {
	AuthenticateAgent(ctx context.Context, apiKey string) (context.Context, error)
}

// Middleware provides MCP-specific authentication middleware.
// Unlike the general auth middleware, this returns RFC 6750 WWW-Authenticate
// headers and also accepts the key in the api_key query parameter, for MCP
// clients that can only be configured with a URL.
type Middleware struct {
	agents AgentAuthenticator
	logger *zap.Logger
}

// NewMiddleware creates a new MCP auth middleware.
func NewMiddleware(agents AgentAuthenticator, logger *zap.Logger) *Middleware {
	return &Middleware{
		agents: agents,
		logger: logger,
	}
}

// RequireAgent authenticates the agent API key before the MCP transport sees the request.
// The access gate is applied per tool, so inactive agents can still call forvm_status.
func (m *Middleware) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.agents.AuthenticateAgent(r.Context(), auth.ExtractAPIKey(r, true))
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(ctx))
		case errors.Is(err, auth.ErrMissingCredentials):
			m.logger.Debug("MCP auth failed: missing API key", zap.String("path", r.URL.Path))
			m.writeWWWAuthenticate(w, http.StatusUnauthorized, "invalid_request", "An agent API key is required")
		case errors.Is(err, apperrors.ErrUnauthorized):
			m.logger.Debug("MCP auth failed: invalid API key", zap.String("path", r.URL.Path))
			m.writeWWWAuthenticate(w, http.StatusUnauthorized, "invalid_token", "The API key is invalid")
		default:
			m.logger.Error("MCP auth failed: agent lookup error", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
}

// writeWWWAuthenticate writes an RFC 6750 Bearer token error response.
// See: https://datatracker.ietf.org/doc/html/rfc6750#section-3
func (m *Middleware) writeWWWAuthenticate(w http.ResponseWriter, status int, errorCode, description string) {
	headerValue := `Bearer error="` + errorCode + `", error_description="` + description + `"`
	w.Header().Set("WWW-Authenticate", headerValue)
	w.WriteHeader(status)
}
