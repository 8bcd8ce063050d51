package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
	"github.com/ekaya-inc/forvm-engine/pkg/models"
)

// Common authentication errors. Each one matches apperrors.ErrUnauthorized.
var (
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", apperrors.ErrUnauthorized)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized)
	ErrNotAdmin           = fmt.Errorf("%w: admin role required", apperrors.ErrForbidden)
)

// AgentAuthenticator resolves an API key to its agent.
// Implementations return apperrors.ErrUnauthorized for unknown keys.
type AgentAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.Agent, error)
}

// AdminAuthenticator validates admin credentials on a request.
type AdminAuthenticator interface {
	// ValidateRequest returns nil claims for the static token and JWT claims otherwise.
	ValidateRequest(r *http.Request) (*Claims, error)
}

type adminAuthenticator struct {
	adminToken []byte
	jwks       JWKSClientInterface
	logger     *zap.Logger
}

// NewAdminAuthenticator accepts the static admin token (empty disables it) and,
// when jwks is non-nil, JWTs that carry the admin role.
func NewAdminAuthenticator(adminToken string, jwks JWKSClientInterface, logger *zap.Logger) AdminAuthenticator {
	return &adminAuthenticator{
		adminToken: []byte(adminToken),
		jwks:       jwks,
		logger:     logger.Named("admin-auth"),
	}
}

var _ AdminAuthenticator = (*adminAuthenticator)(nil)

func (a *adminAuthenticator) ValidateRequest(r *http.Request) (*Claims, error) {
	token := strings.TrimSpace(r.Header.Get("x-admin-token"))
	if token == "" {
		token, _ = bearerToken(r)
	}
	if token == "" {
		return nil, ErrMissingCredentials
	}

	if len(a.adminToken) > 0 && subtle.ConstantTimeCompare([]byte(token), a.adminToken) == 1 {
		return nil, nil
	}

	// Only JWT-shaped tokens are worth handing to the JWKS client.
	if a.jwks == nil || strings.Count(token, ".") != 2 {
		return nil, ErrInvalidCredentials
	}

	claims, err := a.jwks.ValidateToken(token)
	if err != nil {
		a.logger.Debug("Admin JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return nil, ErrInvalidCredentials
	}
	if !claims.HasRole(AdminRole) {
		a.logger.Warn("JWT without admin role attempted admin endpoint",
			zap.String("subject", claims.Subject),
			zap.String("path", r.URL.Path))
		return nil, ErrNotAdmin
	}
	return claims, nil
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apperrors.ErrUnauthorized)
}
