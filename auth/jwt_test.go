package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashCredentialStable(t *testing.T) {
	a := HashCredential("rlm_abc")
	b := HashCredential("rlm_abc")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, HashCredential("rlm_abd"))
}

func TestAuditPrefix(t *testing.T) {
	assert.Equal(t, "rlm_12345678", AuditPrefix("rlm_1234567890abcdef"))
	assert.Equal(t, "short", AuditPrefix("short"))
}

func TestNewAPIKeyShape(t *testing.T) {
	key, err := NewAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, APIKeyPrefix))
	assert.Greater(t, len(key), 40)

	other, err := NewAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestTokenIssueAndValidate(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	raw, exp, err := issuer.Issue("user-1", "proj-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, OAuthTokenPrefix))
	assert.True(t, exp.After(time.Now()))

	claims, err := issuer.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "proj-1", claims.ProjectID)
}

func TestTokenValidateRejectsWrongSecret(t *testing.T) {
	raw, _, err := NewTokenIssuer("secret-a", time.Hour).Issue("user-1", "proj-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Validate(raw)
	assert.Error(t, err)
}

func TestTokenValidateRejectsExpired(t *testing.T) {
	raw, _, err := NewTokenIssuer("secret", -time.Minute).Issue("user-1", "proj-1")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Hour).Validate(raw)
	assert.Error(t, err)
}

func TestTokenValidateRejectsNonToken(t *testing.T) {
	_, err := NewTokenIssuer("secret", time.Hour).Validate("rlm_plainkey")
	assert.Error(t, err)
}
