package auth

import (
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^fvm_[0-9a-f]{48}$`), key)

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashAPIKey("abc"))
	assert.Len(t, HashAPIKey("fvm_test"), 64)
	assert.NotEqual(t, HashAPIKey("fvm_a"), HashAPIKey("fvm_b"))
}

func TestExtractAPIKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/agents/me", nil)
	assert.Empty(t, ExtractAPIKey(r, false))

	r.Header.Set("Authorization", "Bearer fvm_bearer")
	assert.Equal(t, "fvm_bearer", ExtractAPIKey(r, false))

	r.Header.Set("x-api-key", "fvm_header")
	assert.Equal(t, "fvm_header", ExtractAPIKey(r, false), "x-api-key wins over bearer")

	q := httptest.NewRequest("GET", "/mcp?api_key=fvm_query", nil)
	assert.Empty(t, ExtractAPIKey(q, false))
	assert.Equal(t, "fvm_query", ExtractAPIKey(q, true))

	basic := httptest.NewRequest("GET", "/", nil)
	basic.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, ExtractAPIKey(basic, false))
}
