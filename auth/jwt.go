// Package auth handles credential hashing and the project-scoped OAuth
// tokens issued by the console flow.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential prefixes. The prefix selects the resolution path during
// admission.
const (
	APIKeyPrefix     = "rlm_"
	OAuthTokenPrefix = "snipara_at_"
	ClientKeyPrefix  = "snipara_ic_"
)

// PrefixLen is how many characters of a credential are stored for audit.
const PrefixLen = 12

// TokenClaims are the claims of a project-scoped OAuth token.
type TokenClaims struct {
	UserID    string `json:"uid"`
	ProjectID string `json:"pid"`
	jwt.RegisteredClaims
}

// HashCredential returns the hex SHA-256 of a raw credential. Only hashes
// are stored; the raw value is shown once at creation.
func HashCredential(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// AuditPrefix returns the stored 12-char prefix of a credential.
func AuditPrefix(raw string) string {
	if len(raw) <= PrefixLen {
		return raw
	}
	return raw[:PrefixLen]
}

// NewAPIKey generates a raw rlm_ key. The caller stores the hash and the
// audit prefix.
func NewAPIKey() (string, error) {
	return newKey(APIKeyPrefix)
}

// NewClientKey generates a raw snipara_ic_ integrator client key.
func NewClientKey() (string, error) {
	return newKey(ClientKeyPrefix)
}

func newKey(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// TokenIssuer signs and validates snipara_at_ bearer tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), issuer: "snipara", ttl: ttl}
}

// Issue creates a project-scoped token. The returned string carries the
// snipara_at_ prefix; its hash goes in the oauth_tokens row for revocation.
func (t *TokenIssuer) Issue(userID, projectID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := TokenClaims{
		UserID:    userID,
		ProjectID: projectID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return OAuthTokenPrefix + signed, exp, nil
}

// Validate checks a snipara_at_ token's signature and expiry and returns
// its claims. Revocation is the caller's lookup against the stored hash.
func (t *TokenIssuer) Validate(raw string) (*TokenClaims, error) {
	if !strings.HasPrefix(raw, OAuthTokenPrefix) {
		return nil, errors.New("not an oauth token")
	}
	tokenString := strings.TrimPrefix(raw, OAuthTokenPrefix)

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(t.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" || claims.ProjectID == "" {
		return nil, errors.New("token missing identity claims")
	}
	return claims, nil
}
