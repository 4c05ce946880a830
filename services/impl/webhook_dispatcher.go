package impl

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
)

const (
	webhookSignatureHeader = "X-Snipara-Signature"
	webhookEventHeader     = "X-Snipara-Event"
	webhookMaxAttempts     = 3
)

// webhookBackoff is the delay before attempt n (1-based retry).
var webhookBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// WebhookDispatcher signs and delivers integrator events. Dispatch is
// fire-and-forget; delivery runs in the background with bounded retries and
// every attempt chain is recorded.
type WebhookDispatcher struct {
	db     *gorm.DB
	client *http.Client
	log    *zap.Logger
}

func NewWebhookDispatcher(db *gorm.DB, log *zap.Logger) *WebhookDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookDispatcher{
		db:     db,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// Dispatch fans the event out to every active endpoint of the workspace
// subscribed to its type.
func (w *WebhookDispatcher) Dispatch(ctx context.Context, workspaceID uuid.UUID, eventType string, payload interface{}) {
	body, err := json.Marshal(map[string]interface{}{
		"event":     eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	})
	if err != nil {
		w.log.Error("failed to marshal webhook payload", zap.Error(err))
		return
	}

	var endpoints []models.WebhookEndpoint
	err = w.db.WithContext(ctx).
		Where("workspace_id = ? AND is_active = ?", workspaceID, true).
		Find(&endpoints).Error
	if err != nil {
		w.log.Error("failed to load webhook endpoints", zap.Error(err))
		return
	}

	for _, ep := range endpoints {
		if !subscribed(ep.EventTypes, eventType) {
			continue
		}
		delivery := models.WebhookDelivery{
			EndpointID: ep.ID,
			EventType:  eventType,
			Payload:    string(body),
		}
		if err := w.db.WithContext(ctx).Create(&delivery).Error; err != nil {
			w.log.Error("failed to record webhook delivery", zap.Error(err))
			continue
		}
		go w.deliver(ep, delivery, body)
	}
}

// subscribed treats an empty event list as all events.
func subscribed(eventTypes []string, eventType string) bool {
	if len(eventTypes) == 0 {
		return true
	}
	for _, t := range eventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func (w *WebhookDispatcher) deliver(ep models.WebhookEndpoint, delivery models.WebhookDelivery, body []byte) {
	signature := "sha256=" + Sign(ep.Secret, body)

	for attempt := 1; attempt <= webhookMaxAttempts; attempt++ {
		status, err := w.post(ep.URL, delivery.EventType, signature, body)

		delivery.Attempts = attempt
		delivery.LastStatus = status
		if err != nil {
			delivery.LastError = err.Error()
		} else {
			delivery.LastError = ""
		}
		delivery.Delivered = err == nil && status >= 200 && status < 300

		if delivery.Delivered {
			delivery.NextRetry = nil
			w.save(&delivery)
			return
		}

		if attempt < webhookMaxAttempts {
			next := time.Now().Add(webhookBackoff[attempt-1])
			delivery.NextRetry = &next
			w.save(&delivery)
			time.Sleep(webhookBackoff[attempt-1])
		} else {
			delivery.NextRetry = nil
			w.save(&delivery)
			w.log.Warn("webhook delivery failed",
				zap.String("endpoint_id", ep.ID.String()),
				zap.String("event", delivery.EventType),
				zap.Int("attempts", attempt))
		}
	}
}

func (w *WebhookDispatcher) post(url, eventType, signature string, body []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookSignatureHeader, signature)
	req.Header.Set(webhookEventHeader, eventType)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (w *WebhookDispatcher) save(delivery *models.WebhookDelivery) {
	if err := w.db.Save(delivery).Error; err != nil {
		w.log.Error("failed to update webhook delivery", zap.Error(err))
	}
}

// Sign computes the hex HMAC-SHA256 of body under secret. Receivers verify
// the X-Snipara-Signature header with the same computation.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
