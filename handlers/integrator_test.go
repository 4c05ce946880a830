package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/snipara/rlm/models"
)

type fakeIntegrator struct {
	workspaces map[uuid.UUID]*models.IntegratorWorkspace
	clients    map[uuid.UUID]*models.IntegratorClient
	revoked    []uuid.UUID
	deleted    []uuid.UUID
}

func newFakeIntegrator() *fakeIntegrator {
	return &fakeIntegrator{
		workspaces: map[uuid.UUID]*models.IntegratorWorkspace{},
		clients:    map[uuid.UUID]*models.IntegratorClient{},
	}
}

func (f *fakeIntegrator) CreateWorkspace(ctx context.Context, name, ownerEmail string) (*models.IntegratorWorkspace, error) {
	ws := &models.IntegratorWorkspace{ID: uuid.New(), Name: name, OwnerID: ownerEmail}
	f.workspaces[ws.ID] = ws
	return ws, nil
}

func (f *fakeIntegrator) GetWorkspace(ctx context.Context, id uuid.UUID) (*models.IntegratorWorkspace, error) {
	ws, ok := f.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace not found")
	}
	return ws, nil
}

func (f *fakeIntegrator) CreateClient(ctx context.Context, workspaceID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error) {
	client := &models.IntegratorClient{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		ProjectID:   uuid.New(),
		Name:        name,
		Bundle:      bundle,
		IsActive:    true,
	}
	f.clients[client.ID] = client
	return client, nil
}

func (f *fakeIntegrator) GetClient(ctx context.Context, clientID uuid.UUID) (*models.IntegratorClient, error) {
	client, ok := f.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found")
	}
	return client, nil
}

func (f *fakeIntegrator) ListClients(ctx context.Context, workspaceID uuid.UUID) ([]models.IntegratorClient, error) {
	var out []models.IntegratorClient
	for _, c := range f.clients {
		if c.WorkspaceID == workspaceID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeIntegrator) UpdateClient(ctx context.Context, clientID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error) {
	client, ok := f.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client not found")
	}
	if name != "" {
		client.Name = name
	}
	if bundle != "" {
		client.Bundle = bundle
	}
	return client, nil
}

func (f *fakeIntegrator) DeleteClient(ctx context.Context, clientID uuid.UUID) error {
	f.deleted = append(f.deleted, clientID)
	delete(f.clients, clientID)
	return nil
}

func (f *fakeIntegrator) CreateClientKey(ctx context.Context, clientID uuid.UUID, name string) (*models.ClientAPIKey, string, error) {
	key := &models.ClientAPIKey{
		ID:        uuid.New(),
		ClientID:  clientID,
		KeyPrefix: "snipara_ic_a",
		Name:      name,
	}
	return key, "snipara_ic_abcdef0123456789", nil
}

func (f *fakeIntegrator) RevokeClientKey(ctx context.Context, keyID uuid.UUID) error {
	f.revoked = append(f.revoked, keyID)
	return nil
}

func (f *fakeIntegrator) CreateWebhook(ctx context.Context, workspaceID uuid.UUID, url string, eventTypes []string) (*models.WebhookEndpoint, error) {
	return &models.WebhookEndpoint{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		URL:         url,
		Secret:      "whsec_0123456789abcdef",
		EventTypes:  pq.StringArray(eventTypes),
		IsActive:    true,
	}, nil
}

func (f *fakeIntegrator) DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error {
	return nil
}

type integratorHarness struct {
	admin  *fakeIntegrator
	hooks  *fakeHooks
	router *gin.Engine
}

func newIntegratorHarness(t *testing.T) *integratorHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &integratorHarness{admin: newFakeIntegrator(), hooks: &fakeHooks{}}
	handlers := NewIntegratorHandlers(h.admin, h.hooks, testSecret, zap.NewNop())

	r := gin.New()
	ig := r.Group("/v1/integrator", handlers.Authorize)
	ig.POST("/workspaces", handlers.CreateWorkspace)
	ig.GET("/workspaces/:id", handlers.GetWorkspace)
	ig.POST("/workspaces/:id/clients", handlers.CreateClient)
	ig.GET("/workspaces/:id/clients", handlers.ListClients)
	ig.POST("/workspaces/:id/webhooks", handlers.CreateWebhook)
	ig.PATCH("/clients/:id", handlers.UpdateClient)
	ig.DELETE("/clients/:id", handlers.DeleteClient)
	ig.POST("/clients/:id/keys", handlers.CreateClientKey)
	ig.DELETE("/clients/:id/keys/:key_id", handlers.RevokeClientKey)
	ig.DELETE("/webhooks/:id", handlers.DeleteWebhook)
	h.router = r
	return h
}

func (h *integratorHarness) do(t *testing.T, method, path string, body interface{}, secret string) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Internal-Secret", secret)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *integratorHarness) workspace(t *testing.T) *models.IntegratorWorkspace {
	t.Helper()
	ws, err := h.admin.CreateWorkspace(context.Background(), "Acme Partners", "ops@acme.test")
	require.NoError(t, err)
	return ws
}

func (h *integratorHarness) client(t *testing.T, workspaceID uuid.UUID) *models.IntegratorClient {
	t.Helper()
	client, err := h.admin.CreateClient(context.Background(), workspaceID, "Tenant One", models.BundleLite)
	require.NoError(t, err)
	return client
}

func TestIntegratorRequiresSecret(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces", map[string]string{
		"name": "x", "owner_email": "a@b.c",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodPost, "/v1/integrator/workspaces", map[string]string{
		"name": "x", "owner_email": "a@b.c",
	}, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateWorkspace(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces", map[string]string{
		"name": "Acme Partners", "owner_email": "ops@acme.test",
	}, testSecret)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, "Acme Partners", body["name"])
}

func TestCreateWorkspaceValidation(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces", map[string]string{
		"name": "Acme Partners",
	}, testSecret)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "owner_email are required")
}

func TestGetWorkspaceNotFound(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodGet, "/v1/integrator/workspaces/"+uuid.NewString(), nil, testSecret)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateClientDispatchesEvent(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces/"+ws.ID.String()+"/clients", map[string]string{
		"name": "Tenant One",
	}, testSecret)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeJSON(t, w)
	// Bundle defaults to LITE when omitted.
	assert.Equal(t, "LITE", body["bundle"])

	require.Len(t, h.hooks.events, 1)
	assert.Equal(t, EventClientCreated, h.hooks.events[0].eventType)
	assert.Equal(t, ws.ID, h.hooks.events[0].workspaceID)
}

func TestCreateClientInvalidWorkspaceID(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces/not-a-uuid/clients", map[string]string{
		"name": "Tenant One",
	}, testSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListClients(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)
	h.client(t, ws.ID)

	w := h.do(t, http.MethodGet, "/v1/integrator/workspaces/"+ws.ID.String()+"/clients", nil, testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w)
	assert.Equal(t, 1.0, body["count"])
}

func TestUpdateClientDispatchesEvent(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)
	client := h.client(t, ws.ID)

	w := h.do(t, http.MethodPatch, "/v1/integrator/clients/"+client.ID.String(), map[string]string{
		"name": "Tenant Renamed", "bundle": "STANDARD",
	}, testSecret)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "Tenant Renamed", body["name"])
	assert.Equal(t, "STANDARD", body["bundle"])

	require.Len(t, h.hooks.events, 1)
	assert.Equal(t, EventClientUpdated, h.hooks.events[0].eventType)
}

func TestDeleteClientDispatchesEvent(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)
	client := h.client(t, ws.ID)

	w := h.do(t, http.MethodDelete, "/v1/integrator/clients/"+client.ID.String(), nil, testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{client.ID}, h.admin.deleted)

	require.Len(t, h.hooks.events, 1)
	assert.Equal(t, EventClientDeleted, h.hooks.events[0].eventType)
	assert.Equal(t, ws.ID, h.hooks.events[0].workspaceID)
}

func TestCreateClientKeyReturnsPlaintextOnce(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)
	client := h.client(t, ws.ID)

	w := h.do(t, http.MethodPost, "/v1/integrator/clients/"+client.ID.String()+"/keys", map[string]string{
		"name": "prod",
	}, testSecret)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "snipara_ic_abcdef0123456789", body["api_key"])
	key := body["key"].(map[string]interface{})
	assert.Equal(t, "snipara_ic_a", key["key_prefix"])
	// The stored record never serializes the hash or the raw key.
	assert.NotContains(t, key, "key_hash")

	require.Len(t, h.hooks.events, 1)
	assert.Equal(t, EventKeyCreated, h.hooks.events[0].eventType)
}

func TestRevokeClientKeyDispatchesEvent(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)
	client := h.client(t, ws.ID)
	keyID := uuid.New()

	w := h.do(t, http.MethodDelete,
		"/v1/integrator/clients/"+client.ID.String()+"/keys/"+keyID.String(), nil, testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uuid.UUID{keyID}, h.admin.revoked)

	require.Len(t, h.hooks.events, 1)
	assert.Equal(t, EventKeyRevoked, h.hooks.events[0].eventType)
}

func TestCreateWebhookReturnsSecretOnce(t *testing.T) {
	h := newIntegratorHarness(t)
	ws := h.workspace(t)

	w := h.do(t, http.MethodPost, "/v1/integrator/workspaces/"+ws.ID.String()+"/webhooks", map[string]interface{}{
		"url":         "https://partner.test/hooks",
		"event_types": []string{EventClientCreated, EventKeyRevoked},
	}, testSecret)
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeJSON(t, w)
	assert.Equal(t, "whsec_0123456789abcdef", body["secret"])
	hook := body["webhook"].(map[string]interface{})
	assert.Equal(t, "https://partner.test/hooks", hook["url"])
	// The endpoint record itself never serializes the secret.
	assert.NotContains(t, hook, "secret")
}

func TestDeleteWebhook(t *testing.T) {
	h := newIntegratorHarness(t)

	w := h.do(t, http.MethodDelete, "/v1/integrator/webhooks/"+uuid.NewString(), nil, testSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeJSON(t, w)["deleted"])
}
