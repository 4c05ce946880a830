package impl

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
)

type receivedWebhook struct {
	event     string
	signature string
	body      []byte
}

func TestDispatchSignsAndDelivers(t *testing.T) {
	db := newTestDB(t)
	dispatcher := NewWebhookDispatcher(db, nil)

	got := make(chan receivedWebhook, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- receivedWebhook{
			event:     r.Header.Get("X-Snipara-Event"),
			signature: r.Header.Get("X-Snipara-Signature"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := webhookEndpoint(t, db, srv.URL, nil)
	dispatcher.Dispatch(context.Background(), ep.WorkspaceID, "client.created", map[string]string{"name": "tenant-1"})

	var rcv receivedWebhook
	select {
	case rcv = <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	assert.Equal(t, "client.created", rcv.event)
	assert.True(t, hmac.Equal(
		[]byte(rcv.signature),
		[]byte("sha256="+Sign(ep.Secret, rcv.body)),
	))

	var envelope struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rcv.body, &envelope))
	assert.Equal(t, "client.created", envelope.Event)
	assert.Equal(t, "tenant-1", envelope.Data["name"])

	requireDelivered(t, db, ep.ID, true)
}

func TestDispatchSkipsUnsubscribedEvents(t *testing.T) {
	db := newTestDB(t)
	dispatcher := NewWebhookDispatcher(db, nil)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := webhookEndpoint(t, db, srv.URL, []string{"key.revoked"})
	dispatcher.Dispatch(context.Background(), ep.WorkspaceID, "client.created", nil)

	var deliveries int64
	db.Model(&models.WebhookDelivery{}).Count(&deliveries)
	assert.Zero(t, deliveries)
	assert.Zero(t, hits.Load())
}

func TestDispatchSkipsInactiveEndpoints(t *testing.T) {
	db := newTestDB(t)
	dispatcher := NewWebhookDispatcher(db, nil)

	ep := webhookEndpoint(t, db, "http://127.0.0.1:1/never", nil)
	require.NoError(t, db.Model(&models.WebhookEndpoint{}).
		Where("id = ?", ep.ID).Update("is_active", false).Error)

	dispatcher.Dispatch(context.Background(), ep.WorkspaceID, "client.created", nil)

	var deliveries int64
	db.Model(&models.WebhookDelivery{}).Count(&deliveries)
	assert.Zero(t, deliveries)
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"event":"client.created"}`)
	assert.Equal(t, Sign("secret", body), Sign("secret", body))
	assert.NotEqual(t, Sign("secret", body), Sign("other", body))
	assert.Len(t, Sign("secret", body), 64)
}

func webhookEndpoint(t *testing.T, db *gorm.DB, url string, eventTypes []string) *models.WebhookEndpoint {
	t.Helper()
	ws := models.IntegratorWorkspace{Name: "Hub", Slug: "hub", OwnerID: "hub@partner.test"}
	require.NoError(t, db.Create(&ws).Error)
	ep := models.WebhookEndpoint{
		WorkspaceID: ws.ID,
		URL:         url,
		Secret:      "endpoint-secret",
		EventTypes:  eventTypes,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&ep).Error)
	return &ep
}

func requireDelivered(t *testing.T, db *gorm.DB, endpointID interface{}, want bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		var delivery models.WebhookDelivery
		if err := db.Where("endpoint_id = ?", endpointID).First(&delivery).Error; err != nil {
			return false
		}
		return delivery.Delivered == want && delivery.Attempts > 0
	}, 5*time.Second, 50*time.Millisecond)
}
