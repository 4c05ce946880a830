package impl

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/snipara/rlm/auth"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

type admissionFixture struct {
	db    *gorm.DB
	redis *redis.Client
	adm   *Admission

	team     models.Team
	project  models.Project
	ownerKey string
	teamKey  string
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	f := &admissionFixture{db: newTestDB(t), redis: newTestRedis(t)}

	usage := NewUsageService(f.db, f.redis, nil)
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	f.adm = NewAdmission(f.db, f.redis, usage, issuer, nil)

	f.team = models.Team{Name: "Acme", Slug: "acme", OwnerID: "owner@acme.test"}
	require.NoError(t, f.db.Create(&f.team).Error)
	f.project = models.Project{
		TeamID:  f.team.ID,
		Name:    "Docs",
		Slug:    "acme-docs",
		OwnerID: "owner@acme.test",
	}
	require.NoError(t, f.db.Create(&f.project).Error)

	f.ownerKey = f.mintAPIKey(t, func(k *models.APIKey) {
		owner := "owner@acme.test"
		k.UserID = &owner
	})
	f.teamKey = f.mintAPIKey(t, func(k *models.APIKey) {
		k.TeamID = &f.team.ID
	})
	return f
}

func (f *admissionFixture) mintAPIKey(t *testing.T, mutate func(*models.APIKey)) string {
	t.Helper()
	raw, err := auth.NewAPIKey()
	require.NoError(t, err)
	key := models.APIKey{
		KeyHash:   auth.HashCredential(raw),
		KeyPrefix: auth.AuditPrefix(raw),
		Name:      "test key",
	}
	mutate(&key)
	require.NoError(t, f.db.Create(&key).Error)
	return raw
}

func (f *admissionFixture) subscribe(t *testing.T, teamID uuid.UUID, plan models.Plan, status string) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.Subscription{
		TeamID: teamID, Plan: plan, Status: status,
	}).Error)
}

func admissionStatus(t *testing.T, err error) int {
	t.Helper()
	var ae *services.AdmissionError
	require.ErrorAs(t, err, &ae)
	return ae.Status
}

func TestAdmitMissingCredential(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.adm.Admit(context.Background(), f.project.ID.String(), "", "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))
}

func TestAdmitUnknownKey(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.adm.Admit(context.Background(), f.project.ID.String(), "rlm_0000000000000000", "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))

	var denials int64
	f.db.Model(&models.AccessDenial{}).Count(&denials)
	assert.EqualValues(t, 1, denials)
}

func TestAdmitOwnerKey(t *testing.T) {
	f := newAdmissionFixture(t)

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), f.ownerKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessAdmin, p.AccessLevel)
	assert.Equal(t, models.PlanFree, p.Plan)
	assert.Equal(t, 20, p.RateLimitPerMinute)
	assert.Equal(t, 500, p.MonthlyLimit)
	assert.Equal(t, f.project.ID.String(), p.ProjectID)
	assert.Equal(t, "owner@acme.test", p.UserID)
}

func TestAdmitBySlug(t *testing.T) {
	f := newAdmissionFixture(t)

	p, err := f.adm.Admit(context.Background(), "acme-docs", f.ownerKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, f.project.ID.String(), p.ProjectID)
}

func TestAdmitProjectNotFound(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.adm.Admit(context.Background(), "no-such-project", f.ownerKey, "10.0.0.1")
	assert.Equal(t, http.StatusNotFound, admissionStatus(t, err))
}

func TestAdmitSameTeamKeyIsAdmin(t *testing.T) {
	f := newAdmissionFixture(t)

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), f.teamKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessAdmin, p.AccessLevel)
}

func TestAdmitRevokedKey(t *testing.T) {
	f := newAdmissionFixture(t)
	now := time.Now()
	require.NoError(t, f.db.Model(&models.APIKey{}).
		Where("key_hash = ?", auth.HashCredential(f.ownerKey)).
		Update("revoked_at", now).Error)

	_, err := f.adm.Admit(context.Background(), f.project.ID.String(), f.ownerKey, "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))
}

func TestAdmitExplicitDenyBeatsPublic(t *testing.T) {
	f := newAdmissionFixture(t)
	require.NoError(t, f.db.Model(&models.Project{}).
		Where("id = ?", f.project.ID).
		Update("is_public", true).Error)

	other := models.Team{Name: "Rival", Slug: "rival", OwnerID: "eve@rival.test"}
	require.NoError(t, f.db.Create(&other).Error)
	otherKey := f.mintAPIKey(t, func(k *models.APIKey) { k.TeamID = &other.ID })

	require.NoError(t, f.db.Create(&models.ProjectAccess{
		ProjectID: f.project.ID, TeamID: other.ID, Level: models.AccessNone,
	}).Error)

	_, err := f.adm.Admit(context.Background(), f.project.ID.String(), otherKey, "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))

	var denial models.AccessDenial
	require.NoError(t, f.db.First(&denial).Error)
	assert.Equal(t, "explicit deny", denial.Reason)
}

func TestAdmitPublicProjectFallsToViewer(t *testing.T) {
	f := newAdmissionFixture(t)
	require.NoError(t, f.db.Model(&models.Project{}).
		Where("id = ?", f.project.ID).
		Update("is_public", true).Error)

	other := models.Team{Name: "Rival", Slug: "rival", OwnerID: "eve@rival.test"}
	require.NoError(t, f.db.Create(&other).Error)
	otherKey := f.mintAPIKey(t, func(k *models.APIKey) { k.TeamID = &other.ID })

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), otherKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessViewer, p.AccessLevel)
}

func TestAdmitPrivateProjectDeniesOutsiders(t *testing.T) {
	f := newAdmissionFixture(t)
	outsider := f.mintAPIKey(t, func(k *models.APIKey) {
		eve := "eve@rival.test"
		k.UserID = &eve
	})

	_, err := f.adm.Admit(context.Background(), f.project.ID.String(), outsider, "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))
}

func TestAdmitGrantedAccessLevel(t *testing.T) {
	f := newAdmissionFixture(t)

	other := models.Team{Name: "Partner", Slug: "partner", OwnerID: "p@partner.test"}
	require.NoError(t, f.db.Create(&other).Error)
	otherKey := f.mintAPIKey(t, func(k *models.APIKey) { k.TeamID = &other.ID })

	require.NoError(t, f.db.Create(&models.ProjectAccess{
		ProjectID: f.project.ID, TeamID: other.ID, Level: models.AccessEditor,
	}).Error)

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), otherKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessEditor, p.AccessLevel)
}

func TestAdmitActiveSubscriptionPlan(t *testing.T) {
	f := newAdmissionFixture(t)
	f.subscribe(t, f.team.ID, models.PlanTeam, "active")

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), f.ownerKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanTeam, p.Plan)
	assert.Equal(t, 120, p.RateLimitPerMinute)
	assert.Equal(t, 50000, p.MonthlyLimit)
}

func TestAdmitLapsedSubscriptionFallsToFree(t *testing.T) {
	f := newAdmissionFixture(t)
	f.subscribe(t, f.team.ID, models.PlanPro, "canceled")

	p, err := f.adm.Admit(context.Background(), f.project.ID.String(), f.ownerKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, p.Plan)
}

func TestAdmitRateLimited(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := f.adm.Admit(ctx, f.project.ID.String(), f.ownerKey, "10.0.0.1")
		require.NoError(t, err, "call %d", i)
	}
	_, err := f.adm.Admit(ctx, f.project.ID.String(), f.ownerKey, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, admissionStatus(t, err))
	assert.Contains(t, err.Error(), "Rate limit exceeded: 20 requests per minute")
}

func TestAdmitMonthlyQuotaExceeded(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	key := monthlyKey(f.project.ID.String(), time.Now())
	require.NoError(t, f.redis.Set(ctx, key, 500, time.Hour).Err())

	_, err := f.adm.Admit(ctx, f.project.ID.String(), f.ownerKey, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, admissionStatus(t, err))
	assert.Contains(t, err.Error(), "monthly query limit reached")
}

func TestAntiScanBlocksRepeatedDenials(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()
	scanner := "rlm_feedfacefeedfacefeedface"

	for i := 0; i < antiScanThreshold; i++ {
		_, err := f.adm.Admit(ctx, f.project.ID.String(), scanner, "10.0.0.9")
		assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))
	}

	// The prefix is now blocked outright, before credential resolution.
	_, err := f.adm.Admit(ctx, f.project.ID.String(), scanner, "10.0.0.9")
	assert.Equal(t, http.StatusTooManyRequests, admissionStatus(t, err))
	assert.Contains(t, err.Error(), "Too many failed requests")
}

func TestAdmitOAuthToken(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	raw, exp, err := issuer.Issue("owner@acme.test", f.project.ID.String())
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.OAuthToken{
		TokenHash: auth.HashCredential(raw),
		Prefix:    auth.AuditPrefix(raw),
		UserID:    "owner@acme.test",
		ProjectID: f.project.ID,
		ExpiresAt: exp,
	}).Error)

	p, err := f.adm.Admit(ctx, f.project.ID.String(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessAdmin, p.AccessLevel)
	assert.Equal(t, "owner@acme.test", p.UserID)
}

func TestAdmitOAuthTokenProjectMismatch(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	second := models.Project{
		TeamID: f.team.ID, Name: "Other", Slug: "acme-other", OwnerID: "owner@acme.test",
	}
	require.NoError(t, f.db.Create(&second).Error)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	raw, exp, err := issuer.Issue("owner@acme.test", f.project.ID.String())
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.OAuthToken{
		TokenHash: auth.HashCredential(raw),
		Prefix:    auth.AuditPrefix(raw),
		UserID:    "owner@acme.test",
		ProjectID: f.project.ID,
		ExpiresAt: exp,
	}).Error)

	_, err = f.adm.Admit(ctx, second.ID.String(), raw, "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))
}

func TestAdmitRevokedOAuthToken(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	raw, exp, err := issuer.Issue("owner@acme.test", f.project.ID.String())
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, f.db.Create(&models.OAuthToken{
		TokenHash: auth.HashCredential(raw),
		Prefix:    auth.AuditPrefix(raw),
		UserID:    "owner@acme.test",
		ProjectID: f.project.ID,
		ExpiresAt: exp,
		RevokedAt: &now,
	}).Error)

	_, err = f.adm.Admit(ctx, f.project.ID.String(), raw, "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))
}

func TestAdmitClientKey(t *testing.T) {
	f := newAdmissionFixture(t)
	ctx := context.Background()

	ws := models.IntegratorWorkspace{Name: "Hub", Slug: "hub", OwnerID: "hub@partner.test"}
	require.NoError(t, f.db.Create(&ws).Error)
	client := models.IntegratorClient{
		WorkspaceID: ws.ID, ProjectID: f.project.ID,
		Name: "tenant-1", Bundle: models.BundleLite, IsActive: true,
	}
	require.NoError(t, f.db.Create(&client).Error)

	raw, err := auth.NewClientKey()
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&models.ClientAPIKey{
		ClientID:  client.ID,
		KeyHash:   auth.HashCredential(raw),
		KeyPrefix: auth.AuditPrefix(raw),
		Name:      "tenant key",
	}).Error)

	p, err := f.adm.Admit(ctx, f.project.ID.String(), raw, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, p.IsIntegrator)
	assert.Equal(t, models.PlanPartner, p.Plan)
	assert.Equal(t, models.AccessEditor, p.AccessLevel)
	assert.Equal(t, 2000, p.MonthlyLimit)
	assert.Equal(t, 300, p.RateLimitPerMinute)
	assert.Equal(t, client.ID, p.ClientID)
}

func TestAdmitTeam(t *testing.T) {
	f := newAdmissionFixture(t)
	f.subscribe(t, f.team.ID, models.PlanTeam, "active")

	p, err := f.adm.AdmitTeam(context.Background(), f.team.ID.String(), f.teamKey, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.AccessAdmin, p.AccessLevel)
	assert.Equal(t, f.team.ID.String(), p.TeamID)
	assert.Equal(t, models.PlanTeam, p.Plan)
}

func TestAdmitTeamRequiresTeamPlan(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.adm.AdmitTeam(context.Background(), f.team.ID.String(), f.teamKey, "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))
	assert.Contains(t, err.Error(), "team features require")
}

func TestAdmitTeamRejectsUserKey(t *testing.T) {
	f := newAdmissionFixture(t)
	f.subscribe(t, f.team.ID, models.PlanTeam, "active")

	_, err := f.adm.AdmitTeam(context.Background(), f.team.ID.String(), f.ownerKey, "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))
}

func TestAdmitTeamWrongTeam(t *testing.T) {
	f := newAdmissionFixture(t)
	other := models.Team{Name: "Rival", Slug: "rival", OwnerID: "eve@rival.test"}
	require.NoError(t, f.db.Create(&other).Error)

	_, err := f.adm.AdmitTeam(context.Background(), other.ID.String(), f.teamKey, "10.0.0.1")
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))
}

func TestAdmitTeamNotFound(t *testing.T) {
	f := newAdmissionFixture(t)

	_, err := f.adm.AdmitTeam(context.Background(), uuid.NewString(), f.teamKey, "10.0.0.1")
	assert.Equal(t, http.StatusNotFound, admissionStatus(t, err))
}

func TestPlanBudgetsCoverEveryPlan(t *testing.T) {
	for _, plan := range []models.Plan{
		models.PlanFree, models.PlanPro, models.PlanTeam,
		models.PlanEnterprise, models.PlanPartner,
	} {
		t.Run(string(plan), func(t *testing.T) {
			rate, ok := planRateLimits[plan]
			require.True(t, ok, fmt.Sprintf("missing rate limit for %s", plan))
			assert.Positive(t, rate)
			_, ok = planMonthlyLimits[plan]
			require.True(t, ok)
		})
	}
}
