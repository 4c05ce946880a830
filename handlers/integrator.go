package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

// Webhook event types emitted by the integrator surface.
const (
	EventClientCreated = "client.created"
	EventClientUpdated = "client.updated"
	EventClientDeleted = "client.deleted"
	EventKeyCreated    = "api_key.created"
	EventKeyRevoked    = "api_key.revoked"
	EventUsageWarning  = "usage.limit_warning"
	EventUsageExceeded = "usage.limit_exceeded"
)

// IntegratorHandlers is the partner provisioning surface under
// /v1/integrator, gated on the internal secret. Mutations emit signed
// webhook events to the workspace's endpoints.
type IntegratorHandlers struct {
	admin          services.IntegratorService
	hooks          services.WebhookDispatcher
	internalSecret string
	log            *zap.Logger
}

func NewIntegratorHandlers(admin services.IntegratorService, hooks services.WebhookDispatcher,
	internalSecret string, log *zap.Logger) *IntegratorHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntegratorHandlers{admin: admin, hooks: hooks, internalSecret: internalSecret, log: log}
}

// Authorize is the route-group middleware checking the internal secret.
func (h *IntegratorHandlers) Authorize(c *gin.Context) {
	if h.internalSecret == "" ||
		subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Internal-Secret")), []byte(h.internalSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credential"})
	}
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

type createWorkspaceRequest struct {
	Name       string `json:"name" binding:"required"`
	OwnerEmail string `json:"owner_email" binding:"required"`
}

// CreateWorkspace serves POST /v1/integrator/workspaces.
func (h *IntegratorHandlers) CreateWorkspace(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and owner_email are required"})
		return
	}
	ws, err := h.admin.CreateWorkspace(c.Request.Context(), req.Name, req.OwnerEmail)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusCreated, ws)
}

// GetWorkspace serves GET /v1/integrator/workspaces/:id.
func (h *IntegratorHandlers) GetWorkspace(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ws, err := h.admin.GetWorkspace(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, ws)
}

type clientRequest struct {
	Name   string                  `json:"name"`
	Bundle models.IntegratorBundle `json:"bundle"`
}

// CreateClient serves POST /v1/integrator/workspaces/:id/clients.
func (h *IntegratorHandlers) CreateClient(c *gin.Context) {
	workspaceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if req.Bundle == "" {
		req.Bundle = models.BundleLite
	}

	client, err := h.admin.CreateClient(c.Request.Context(), workspaceID, req.Name, req.Bundle)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	h.hooks.Dispatch(c.Request.Context(), workspaceID, EventClientCreated, client)
	c.JSON(http.StatusCreated, client)
}

// ListClients serves GET /v1/integrator/workspaces/:id/clients.
func (h *IntegratorHandlers) ListClients(c *gin.Context) {
	workspaceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	clients, err := h.admin.ListClients(c.Request.Context(), workspaceID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients, "count": len(clients)})
}

// UpdateClient serves PATCH /v1/integrator/clients/:id.
func (h *IntegratorHandlers) UpdateClient(c *gin.Context) {
	clientID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req clientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	client, err := h.admin.UpdateClient(c.Request.Context(), clientID, req.Name, req.Bundle)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	h.hooks.Dispatch(c.Request.Context(), client.WorkspaceID, EventClientUpdated, client)
	c.JSON(http.StatusOK, client)
}

// DeleteClient serves DELETE /v1/integrator/clients/:id. The client is
// deactivated and its keys revoked; the backing project stays for audit.
func (h *IntegratorHandlers) DeleteClient(c *gin.Context) {
	clientID, ok := pathID(c, "id")
	if !ok {
		return
	}
	client, err := h.admin.GetClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	if err := h.admin.DeleteClient(c.Request.Context(), clientID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	h.hooks.Dispatch(c.Request.Context(), client.WorkspaceID, EventClientDeleted, gin.H{
		"client_id": client.ID,
		"name":      client.Name,
	})
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type createKeyRequest struct {
	Name string `json:"name"`
}

// CreateClientKey serves POST /v1/integrator/clients/:id/keys. The plaintext
// key appears in this response and nowhere else.
func (h *IntegratorHandlers) CreateClientKey(c *gin.Context) {
	clientID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	client, err := h.admin.GetClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	key, raw, err := h.admin.CreateClientKey(c.Request.Context(), clientID, req.Name)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	h.hooks.Dispatch(c.Request.Context(), client.WorkspaceID, EventKeyCreated, gin.H{
		"key_id":     key.ID,
		"client_id":  clientID,
		"key_prefix": key.KeyPrefix,
	})
	c.JSON(http.StatusCreated, gin.H{
		"key": key,
		"api_key": raw,
	})
}

// RevokeClientKey serves DELETE /v1/integrator/clients/:id/keys/:key_id.
func (h *IntegratorHandlers) RevokeClientKey(c *gin.Context) {
	clientID, ok := pathID(c, "id")
	if !ok {
		return
	}
	keyID, ok := pathID(c, "key_id")
	if !ok {
		return
	}

	client, err := h.admin.GetClient(c.Request.Context(), clientID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	if err := h.admin.RevokeClientKey(c.Request.Context(), keyID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	h.hooks.Dispatch(c.Request.Context(), client.WorkspaceID, EventKeyRevoked, gin.H{
		"key_id":    keyID,
		"client_id": clientID,
	})
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

type createWebhookRequest struct {
	URL        string   `json:"url" binding:"required"`
	EventTypes []string `json:"event_types,omitempty"`
}

// CreateWebhook serves POST /v1/integrator/workspaces/:id/webhooks. The
// signing secret appears in this response and nowhere else.
func (h *IntegratorHandlers) CreateWebhook(c *gin.Context) {
	workspaceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	ep, err := h.admin.CreateWebhook(c.Request.Context(), workspaceID, req.URL, req.EventTypes)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"webhook": ep,
		"secret":  ep.Secret,
	})
}

// DeleteWebhook serves DELETE /v1/integrator/webhooks/:id.
func (h *IntegratorHandlers) DeleteWebhook(c *gin.Context) {
	webhookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.admin.DeleteWebhook(c.Request.Context(), webhookID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": sanitizeError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
