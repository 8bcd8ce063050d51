package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// APIKeyPrefix marks forvm agent keys.
const APIKeyPrefix = "fvm_"

const apiKeyRandomBytes = 24

// GenerateAPIKey returns a new agent key: the prefix followed by 48 hex characters.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAPIKey returns the hex SHA-256 of key. Only the hash is stored.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ExtractAPIKey returns the key from the x-api-key header or an Authorization Bearer header.
// When allowQuery is set, the api_key query parameter is accepted as a last resort
// for MCP clients that cannot set headers.
func ExtractAPIKey(r *http.Request, allowQuery bool) string {
	if key := strings.TrimSpace(r.Header.Get("x-api-key")); key != "" {
		return key
	}
	if token, ok := bearerToken(r); ok {
		return token
	}
	if allowQuery {
		return strings.TrimSpace(r.URL.Query().Get("api_key"))
	}
	return ""
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
