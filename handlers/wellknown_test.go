package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOAuthAuthorizationServerMetadata(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/.well-known/oauth-authorization-server", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "https://rlm.snipara.com", body["issuer"])
	assert.Equal(t, "https://rlm.snipara.com/oauth/authorize", body["authorization_endpoint"])
	assert.Equal(t, "https://rlm.snipara.com/oauth/token", body["token_endpoint"])

	methods := body["code_challenge_methods_supported"].([]interface{})
	assert.Contains(t, methods, "S256")
	grants := body["grant_types_supported"].([]interface{})
	assert.Contains(t, grants, "authorization_code")
}

func TestAIPluginManifest(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/.well-known/ai-plugin.json", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "v1", body["schema_version"])
	assert.Equal(t, "snipara", body["name_for_model"])

	api := body["api"].(map[string]interface{})
	assert.Equal(t, "https://rlm.snipara.com/openapi.json", api["url"])
	auth := body["auth"].(map[string]interface{})
	assert.Equal(t, "service_http", auth["type"])
}
