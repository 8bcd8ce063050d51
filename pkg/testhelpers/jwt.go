// Package testhelpers provides utilities for testing forvm-engine components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestAdminJWT creates an unsigned (alg: none) token for admin routes
// when signature verification is disabled.
func GenerateTestAdminJWT(sub string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestAdminJWTWithBearer returns the token with "Bearer " prefix for the Authorization header.
func GenerateTestAdminJWTWithBearer(sub string, roles ...string) string {
	return "Bearer " + GenerateTestAdminJWT(sub, roles...)
}
