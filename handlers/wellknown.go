package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WellKnownHandlers serves the discovery documents under /.well-known.
type WellKnownHandlers struct {
	baseURL string
}

func NewWellKnownHandlers(baseURL string) *WellKnownHandlers {
	return &WellKnownHandlers{baseURL: baseURL}
}

// OAuthAuthorizationServer serves the RFC 8414 authorization server
// metadata document.
func (h *WellKnownHandlers) OAuthAuthorizationServer(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"issuer":                                h.baseURL,
		"authorization_endpoint":                h.baseURL + "/oauth/authorize",
		"token_endpoint":                        h.baseURL + "/oauth/token",
		"registration_endpoint":                 h.baseURL + "/oauth/register",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_post", "none"},
		"scopes_supported":                      []string{"read", "write"},
	})
}

// AIPlugin serves the OpenAI plugin manifest.
func (h *WellKnownHandlers) AIPlugin(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"schema_version":        "v1",
		"name_for_human":        "Snipara",
		"name_for_model":        "snipara",
		"description_for_human": "Query your project documentation with token-budgeted context retrieval.",
		"description_for_model": "Retrieves the most relevant documentation sections for a query, " +
			"fitted to a token budget. Use rlm_context_query for controlled retrieval and rlm_ask for quick answers.",
		"auth": gin.H{
			"type":                  "service_http",
			"authorization_type":    "bearer",
		},
		"api": gin.H{
			"type": "openapi",
			"url":  h.baseURL + "/openapi.json",
		},
		"logo_url":      h.baseURL + "/logo.png",
		"contact_email": "support@snipara.com",
		"legal_info_url": h.baseURL + "/legal",
	})
}
