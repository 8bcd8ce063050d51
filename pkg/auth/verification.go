package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/forvm-engine/pkg/apperrors"
)

// VerificationPurpose is the purpose claim of email verification tokens.
const VerificationPurpose = "email_verification"

// ErrInvalidVerificationToken is returned for malformed, expired or foreign tokens.
var ErrInvalidVerificationToken = apperrors.NewValidationError("token", "invalid or expired verification token")

// VerificationClaims is the payload of an email verification token.
type VerificationClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// AgentID returns the subject as a UUID.
func (c *VerificationClaims) AgentID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// VerificationTokens issues and checks HS256 email verification tokens.
type VerificationTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewVerificationTokens creates a token issuer. secret must not be empty.
func NewVerificationTokens(secret string, ttl time.Duration) (*VerificationTokens, error) {
	if secret == "" {
		return nil, errors.New("verification token secret is required")
	}
	return &VerificationTokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token binding agentID to email.
func (v *VerificationTokens) Issue(agentID uuid.UUID, email string) (string, error) {
	now := v.now()
	claims := &VerificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		Email:   email,
		Purpose: VerificationPurpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign verification token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose.
func (v *VerificationTokens) Verify(tokenString string) (*VerificationClaims, error) {
	claims := &VerificationClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidVerificationToken
	}
	if claims.Purpose != VerificationPurpose {
		return nil, ErrInvalidVerificationToken
	}
	if _, err := claims.AgentID(); err != nil {
		return nil, ErrInvalidVerificationToken
	}
	return claims, nil
}
