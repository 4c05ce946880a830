package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/auth"
	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

const (
	antiScanCountPrefix = "antiscan:count"
	antiScanBlockPrefix = "antiscan:blocked"
	rateKeyPrefix       = "rate"

	// antiScanThreshold denials within antiScanWindow block the key prefix
	// for antiScanBlockTTL.
	antiScanThreshold = 10
	antiScanWindow    = time.Hour
	antiScanBlockTTL  = 24 * time.Hour
)

// Per-plan request budgets. Monthly -1 means unmetered.
var planRateLimits = map[models.Plan]int{
	models.PlanFree:       20,
	models.PlanPro:        60,
	models.PlanTeam:       120,
	models.PlanEnterprise: 300,
	models.PlanPartner:    300,
}

var planMonthlyLimits = map[models.Plan]int{
	models.PlanFree:       500,
	models.PlanPro:        10000,
	models.PlanTeam:       50000,
	models.PlanEnterprise: -1,
	models.PlanPartner:    -1,
}

// Client-safe admission messages. Internal causes are logged, never
// returned.
var (
	errUnauthorized  = &services.AdmissionError{Status: http.StatusUnauthorized, Message: "invalid or missing credential"}
	errForbidden     = &services.AdmissionError{Status: http.StatusForbidden, Message: "access denied"}
	errProjectMissing = &services.AdmissionError{Status: http.StatusNotFound, Message: "project not found"}
	errTeamMissing   = &services.AdmissionError{Status: http.StatusNotFound, Message: "team not found"}
	errScanBlocked   = &services.AdmissionError{Status: http.StatusTooManyRequests, Message: "Too many failed requests. Try again later."}
)

// Admission runs the ordered gate in front of every tool call: anti-scan
// block, credential resolution, access check, plan resolution, per-minute
// rate limit, monthly quota.
type Admission struct {
	db     *gorm.DB
	redis  *redis.Client
	usage  services.UsageService
	tokens *auth.TokenIssuer
	log    *zap.Logger
}

func NewAdmission(db *gorm.DB, redisClient *redis.Client, usage services.UsageService, tokens *auth.TokenIssuer, log *zap.Logger) *Admission {
	if log == nil {
		log = zap.NewNop()
	}
	return &Admission{db: db, redis: redisClient, usage: usage, tokens: tokens, log: log}
}

func (a *Admission) Admit(ctx context.Context, projectIDOrSlug, credential, clientIP string) (*services.Principal, error) {
	if credential == "" {
		return nil, errUnauthorized
	}
	prefix := auth.AuditPrefix(credential)

	if blocked, err := a.isBlocked(ctx, prefix); err != nil {
		a.log.Warn("anti-scan check failed", zap.Error(err))
	} else if blocked {
		return nil, errScanBlocked
	}

	project, err := a.resolveProject(ctx, projectIDOrSlug)
	if err != nil {
		return nil, err
	}

	principal, err := a.resolvePrincipal(ctx, project, credential, prefix)
	if err != nil {
		return nil, err
	}

	if err := a.resolvePlan(ctx, project, principal); err != nil {
		return nil, err
	}
	if err := a.checkRateLimit(ctx, prefix, principal.RateLimitPerMinute); err != nil {
		return nil, err
	}
	if err := a.checkMonthlyQuota(ctx, project.ID.String(), principal); err != nil {
		return nil, err
	}

	return principal, nil
}

func (a *Admission) AdmitTeam(ctx context.Context, teamIDOrSlug, credential, clientIP string) (*services.Principal, error) {
	if credential == "" || !strings.HasPrefix(credential, auth.APIKeyPrefix) {
		return nil, errUnauthorized
	}
	prefix := auth.AuditPrefix(credential)

	if blocked, err := a.isBlocked(ctx, prefix); err != nil {
		a.log.Warn("anti-scan check failed", zap.Error(err))
	} else if blocked {
		return nil, errScanBlocked
	}

	var team models.Team
	q := a.db.WithContext(ctx)
	if _, uerr := uuid.Parse(teamIDOrSlug); uerr == nil {
		q = q.Where("id = ?", teamIDOrSlug)
	} else {
		q = q.Where("slug = ?", teamIDOrSlug)
	}
	if err := q.First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errTeamMissing
		}
		return nil, fmt.Errorf("failed to load team: %w", err)
	}

	key, err := a.lookupAPIKey(ctx, credential)
	if err != nil {
		return nil, err
	}
	if !key.IsTeamKey() || *key.TeamID != team.ID {
		a.noteDenial(ctx, team.ID.String(), prefix, "team mismatch")
		return nil, errForbidden
	}

	principal := &services.Principal{
		KeyID:       key.ID,
		KeyPrefix:   prefix,
		TeamID:      team.ID.String(),
		AccessLevel: models.AccessAdmin,
	}
	principal.Plan = a.subscriptionPlan(ctx, team.ID)
	principal.RateLimitPerMinute = planRateLimits[principal.Plan]
	principal.MonthlyLimit = planMonthlyLimits[principal.Plan]

	if !principal.Plan.HasTeamFeatures() {
		return nil, &services.AdmissionError{Status: http.StatusForbidden, Message: "team features require TEAM or higher"}
	}
	if err := a.checkRateLimit(ctx, prefix, principal.RateLimitPerMinute); err != nil {
		return nil, err
	}
	return principal, nil
}

func (a *Admission) resolveProject(ctx context.Context, idOrSlug string) (*models.Project, error) {
	var project models.Project
	q := a.db.WithContext(ctx)
	if _, err := uuid.Parse(idOrSlug); err == nil {
		q = q.Where("id = ?", idOrSlug)
	} else {
		q = q.Where("slug = ?", idOrSlug)
	}
	if err := q.First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errProjectMissing
		}
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	return &project, nil
}

func (a *Admission) resolvePrincipal(ctx context.Context, project *models.Project, credential, prefix string) (*services.Principal, error) {
	switch {
	case strings.HasPrefix(credential, auth.OAuthTokenPrefix):
		return a.admitOAuthToken(ctx, project, credential, prefix)
	case strings.HasPrefix(credential, auth.ClientKeyPrefix):
		return a.admitClientKey(ctx, project, credential, prefix)
	case strings.HasPrefix(credential, auth.APIKeyPrefix):
		return a.admitAPIKey(ctx, project, credential, prefix)
	default:
		return nil, errUnauthorized
	}
}

func (a *Admission) admitOAuthToken(ctx context.Context, project *models.Project, credential, prefix string) (*services.Principal, error) {
	claims, err := a.tokens.Validate(credential)
	if err != nil {
		return nil, errUnauthorized
	}

	var row models.OAuthToken
	err = a.db.WithContext(ctx).
		Where("token_hash = ?", auth.HashCredential(credential)).
		First(&row).Error
	if err != nil || row.RevokedAt != nil || time.Now().After(row.ExpiresAt) {
		return nil, errUnauthorized
	}

	if claims.ProjectID != project.ID.String() {
		a.noteDenial(ctx, project.ID.String(), prefix, "token project mismatch")
		return nil, errForbidden
	}

	level := models.AccessViewer
	if project.OwnerID == claims.UserID {
		level = models.AccessAdmin
	}
	return &services.Principal{
		KeyID:       row.ID,
		KeyPrefix:   prefix,
		UserID:      claims.UserID,
		TeamID:      project.TeamID.String(),
		ProjectID:   project.ID.String(),
		AccessLevel: level,
	}, nil
}

func (a *Admission) admitClientKey(ctx context.Context, project *models.Project, credential, prefix string) (*services.Principal, error) {
	var key models.ClientAPIKey
	err := a.db.WithContext(ctx).
		Where("key_hash = ?", auth.HashCredential(credential)).
		First(&key).Error
	if err != nil || key.RevokedAt != nil {
		a.noteDenial(ctx, project.ID.String(), prefix, "unknown client key")
		return nil, errUnauthorized
	}

	var client models.IntegratorClient
	if err := a.db.WithContext(ctx).Where("id = ?", key.ClientID).First(&client).Error; err != nil {
		return nil, errUnauthorized
	}
	if !client.IsActive || client.ProjectID != project.ID {
		a.noteDenial(ctx, project.ID.String(), prefix, "client project mismatch")
		return nil, errForbidden
	}

	return &services.Principal{
		KeyID:        key.ID,
		KeyPrefix:    prefix,
		TeamID:       project.TeamID.String(),
		ProjectID:    project.ID.String(),
		AccessLevel:  models.AccessEditor,
		IsIntegrator: true,
		ClientID:     client.ID,
		MonthlyLimit: client.Bundle.MonthlyQueries(),
	}, nil
}

func (a *Admission) admitAPIKey(ctx context.Context, project *models.Project, credential, prefix string) (*services.Principal, error) {
	key, err := a.lookupAPIKey(ctx, credential)
	if err != nil {
		a.noteDenial(ctx, project.ID.String(), prefix, "unknown api key")
		return nil, err
	}

	principal := &services.Principal{
		KeyID:     key.ID,
		KeyPrefix: prefix,
		ProjectID: project.ID.String(),
		TeamID:    project.TeamID.String(),
	}
	if key.UserID != nil {
		principal.UserID = *key.UserID
	}

	level, reason := a.accessLevel(ctx, project, key)
	if level == models.AccessNone {
		a.noteDenial(ctx, project.ID.String(), prefix, reason)
		return nil, errForbidden
	}
	principal.AccessLevel = level
	return principal, nil
}

func (a *Admission) lookupAPIKey(ctx context.Context, credential string) (*models.APIKey, error) {
	var key models.APIKey
	err := a.db.WithContext(ctx).
		Where("key_hash = ?", auth.HashCredential(credential)).
		First(&key).Error
	if err != nil {
		return nil, errUnauthorized
	}
	if !key.Valid(time.Now()) {
		return nil, errUnauthorized
	}
	return &key, nil
}

// accessLevel resolves what an API key may do on a project. An explicit
// NONE row is a denial; a missing row falls back to public visibility.
func (a *Admission) accessLevel(ctx context.Context, project *models.Project, key *models.APIKey) (models.AccessLevel, string) {
	if key.IsTeamKey() {
		if *key.TeamID == project.TeamID {
			return models.AccessAdmin, ""
		}
		var access models.ProjectAccess
		err := a.db.WithContext(ctx).
			Where("project_id = ? AND team_id = ?", project.ID, *key.TeamID).
			First(&access).Error
		if err == nil {
			if access.Level == models.AccessNone {
				return models.AccessNone, "explicit deny"
			}
			return access.Level, ""
		}
		if project.IsPublic {
			return models.AccessViewer, ""
		}
		return models.AccessNone, "no access grant"
	}

	if key.UserID != nil && *key.UserID == project.OwnerID {
		return models.AccessAdmin, ""
	}
	if project.IsPublic {
		return models.AccessViewer, ""
	}
	return models.AccessNone, "not project owner"
}

func (a *Admission) resolvePlan(ctx context.Context, project *models.Project, principal *services.Principal) error {
	if principal.IsIntegrator {
		principal.Plan = models.PlanPartner
		principal.RateLimitPerMinute = planRateLimits[models.PlanPartner]
		return nil
	}

	principal.Plan = a.subscriptionPlan(ctx, project.TeamID)
	principal.RateLimitPerMinute = planRateLimits[principal.Plan]
	principal.MonthlyLimit = planMonthlyLimits[principal.Plan]
	return nil
}

func (a *Admission) subscriptionPlan(ctx context.Context, teamID uuid.UUID) models.Plan {
	var sub models.Subscription
	err := a.db.WithContext(ctx).Where("team_id = ?", teamID).First(&sub).Error
	if err != nil || sub.Status != "active" {
		return models.PlanFree
	}
	return sub.Plan
}

// checkRateLimit enforces a fixed per-minute window per key prefix.
func (a *Admission) checkRateLimit(ctx context.Context, prefix string, limit int) error {
	if limit <= 0 {
		return nil
	}
	key := fmt.Sprintf("%s:%s:%d", rateKeyPrefix, prefix, time.Now().Unix()/60)

	pipe := a.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		// Degrade open; admission must not depend on Redis health.
		a.log.Warn("rate limit check failed", zap.Error(err))
		return nil
	}
	if incr.Val() > int64(limit) {
		return &services.AdmissionError{
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("Rate limit exceeded: %d requests per minute", limit),
		}
	}
	return nil
}

func (a *Admission) checkMonthlyQuota(ctx context.Context, projectID string, principal *services.Principal) error {
	if principal.MonthlyLimit < 0 {
		return nil
	}
	used, err := a.usage.MonthlyQueries(ctx, projectID)
	if err != nil {
		a.log.Warn("monthly quota check failed", zap.Error(err))
		return nil
	}
	if used >= principal.MonthlyLimit {
		return &services.AdmissionError{
			Status:  http.StatusTooManyRequests,
			Message: fmt.Sprintf("monthly query limit reached (%d/%d)", used, principal.MonthlyLimit),
		}
	}
	return nil
}

func (a *Admission) isBlocked(ctx context.Context, prefix string) (bool, error) {
	n, err := a.redis.Exists(ctx, fmt.Sprintf("%s:%s", antiScanBlockPrefix, prefix)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// noteDenial records the 403 and bumps the anti-scan counter; past the
// threshold the key prefix is blocked outright.
func (a *Admission) noteDenial(ctx context.Context, projectID, prefix, reason string) {
	pid, err := uuid.Parse(projectID)
	if err == nil {
		denial := &models.AccessDenial{ProjectID: pid, KeyPrefix: prefix, Reason: reason}
		if err := a.usage.RecordDenial(ctx, denial); err != nil {
			a.log.Warn("failed to record denial", zap.Error(err))
		}
	}

	countKey := fmt.Sprintf("%s:%s", antiScanCountPrefix, prefix)
	pipe := a.redis.Pipeline()
	incr := pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, antiScanWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		a.log.Warn("failed to bump anti-scan counter", zap.Error(err))
		return
	}
	if incr.Val() >= antiScanThreshold {
		blockKey := fmt.Sprintf("%s:%s", antiScanBlockPrefix, prefix)
		if err := a.redis.Set(ctx, blockKey, 1, antiScanBlockTTL).Err(); err != nil {
			a.log.Warn("failed to block key prefix", zap.Error(err))
		}
		a.log.Warn("key prefix blocked by anti-scan",
			zap.String("key_prefix", prefix),
			zap.Int64("denials", incr.Val()))
	}
}
