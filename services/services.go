// Package services defines the service interfaces that sit between the
// transport handlers and storage. Engine-facing interfaces (index, memory,
// sessions, swarm) live in the engine package next to their consumer; the
// interfaces here cover admission, usage accounting, background indexing,
// and the integrator surface.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snipara/rlm/models"
)

// AdmissionError carries an HTTP status through the admission pipeline.
// Message is already client-safe.
type AdmissionError struct {
	Status  int
	Message string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected (%d): %s", e.Status, e.Message)
}

// Principal is the admitted caller of one request.
type Principal struct {
	KeyID     uuid.UUID
	KeyPrefix string
	UserID    string
	TeamID    string
	ProjectID string

	Plan        models.Plan
	AccessLevel models.AccessLevel

	// Integrator clients run under the PARTNER rate budget and a bundle
	// quota instead of a subscription plan.
	IsIntegrator bool
	ClientID     uuid.UUID

	RateLimitPerMinute int
	MonthlyLimit       int
}

// AdmissionService runs the ordered gate in front of every tool call:
// anti-scan, auth resolution, access denial, plan resolution, rate limit,
// monthly usage, bundle quota.
type AdmissionService interface {
	Admit(ctx context.Context, projectIDOrSlug, credential, clientIP string) (*Principal, error)
	// AdmitTeam authenticates a team-scoped request (multi-project query).
	AdmitTeam(ctx context.Context, teamIDOrSlug, credential, clientIP string) (*Principal, error)
}

// UsageService accounts every invocation, success or not.
type UsageService interface {
	Track(ctx context.Context, rec *models.UsageRecord) error
	RecordDenial(ctx context.Context, denial *models.AccessDenial) error
	MonthlyQueries(ctx context.Context, projectID string) (int, error)
	Summary(ctx context.Context, projectID string, principal *Principal) (*models.UsageSummary, error)
	// ToolBreakdown aggregates per-tool call counts for the admin analytics
	// surface.
	ToolBreakdown(ctx context.Context, since time.Time) ([]models.ToolUsage, error)
}

// IndexJobService enqueues and serves background index jobs.
type IndexJobService interface {
	Enqueue(ctx context.Context, projectID, mode string) (*models.IndexJob, bool, error)
	Get(ctx context.Context, projectID string, jobID uuid.UUID) (*models.IndexJob, error)
}

// IntegratorService is the admin CRUD surface for partner workspaces.
type IntegratorService interface {
	CreateWorkspace(ctx context.Context, name, ownerEmail string) (*models.IntegratorWorkspace, error)
	GetWorkspace(ctx context.Context, id uuid.UUID) (*models.IntegratorWorkspace, error)

	CreateClient(ctx context.Context, workspaceID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error)
	GetClient(ctx context.Context, clientID uuid.UUID) (*models.IntegratorClient, error)
	ListClients(ctx context.Context, workspaceID uuid.UUID) ([]models.IntegratorClient, error)
	UpdateClient(ctx context.Context, clientID uuid.UUID, name string, bundle models.IntegratorBundle) (*models.IntegratorClient, error)
	DeleteClient(ctx context.Context, clientID uuid.UUID) error

	// CreateClientKey returns the plaintext key exactly once.
	CreateClientKey(ctx context.Context, clientID uuid.UUID, name string) (*models.ClientAPIKey, string, error)
	RevokeClientKey(ctx context.Context, keyID uuid.UUID) error

	CreateWebhook(ctx context.Context, workspaceID uuid.UUID, url string, eventTypes []string) (*models.WebhookEndpoint, error)
	DeleteWebhook(ctx context.Context, webhookID uuid.UUID) error
}

// WebhookDispatcher signs and delivers integrator events, retrying with
// backoff in the background.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, workspaceID uuid.UUID, eventType string, payload interface{})
}
