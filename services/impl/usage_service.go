package impl

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/snipara/rlm/models"
	"github.com/snipara/rlm/services"
)

const usageKeyPrefix = "usage:monthly"

// UsageService accounts tool invocations. The month-to-date query counter
// lives in Redis for cheap admission checks; the durable record is the
// usage_records table.
type UsageService struct {
	db    *gorm.DB
	redis *redis.Client
	log   *zap.Logger
}

func NewUsageService(db *gorm.DB, redisClient *redis.Client, log *zap.Logger) *UsageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UsageService{db: db, redis: redisClient, log: log}
}

func monthlyKey(projectID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:%s", usageKeyPrefix, projectID, now.Format("2006-01"))
}

func (u *UsageService) Track(ctx context.Context, rec *models.UsageRecord) error {
	if err := u.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to track usage: %w", err)
	}

	key := monthlyKey(rec.ProjectID.String(), time.Now())
	pipe := u.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 35*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		// The counter rebuilds from the table on the next miss.
		u.log.Warn("failed to bump usage counter", zap.Error(err))
	}
	return nil
}

func (u *UsageService) RecordDenial(ctx context.Context, denial *models.AccessDenial) error {
	if err := u.db.WithContext(ctx).Create(denial).Error; err != nil {
		return fmt.Errorf("failed to record denial: %w", err)
	}
	return nil
}

// MonthlyQueries returns the project's query count for the current month,
// backfilling the Redis counter from the table when it is missing.
func (u *UsageService) MonthlyQueries(ctx context.Context, projectID string) (int, error) {
	now := time.Now()
	key := monthlyKey(projectID, now)

	n, err := u.redis.Get(ctx, key).Int()
	if err == nil {
		return n, nil
	}
	if err != redis.Nil {
		u.log.Warn("usage counter read failed, falling back to db", zap.Error(err))
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var count int64
	err = u.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("project_id = ? AND created_at >= ?", projectID, monthStart).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count monthly usage: %w", err)
	}

	if err := u.redis.Set(ctx, key, count, 35*24*time.Hour).Err(); err != nil {
		u.log.Warn("failed to backfill usage counter", zap.Error(err))
	}
	return int(count), nil
}

// ToolBreakdown aggregates call counts, error counts, mean latency, and
// token totals per tool since the given time.
func (u *UsageService) ToolBreakdown(ctx context.Context, since time.Time) ([]models.ToolUsage, error) {
	var rows []models.ToolUsage
	err := u.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("tool, COUNT(*) AS calls, " +
			"SUM(CASE WHEN success THEN 0 ELSE 1 END) AS errors, " +
			"COALESCE(AVG(latency_ms), 0) AS avg_latency_ms, " +
			"COALESCE(SUM(input_tokens + output_tokens), 0) AS total_tokens").
		Where("created_at >= ?", since).
		Group("tool").
		Order("calls DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tool usage: %w", err)
	}
	return rows, nil
}

func (u *UsageService) Summary(ctx context.Context, projectID string, principal *services.Principal) (*models.UsageSummary, error) {
	queries, err := u.MonthlyQueries(ctx, projectID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var tokens struct{ Total int64 }
	err = u.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("COALESCE(SUM(input_tokens + output_tokens), 0) AS total").
		Where("project_id = ? AND created_at >= ?", projectID, monthStart).
		Scan(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum monthly tokens: %w", err)
	}

	return &models.UsageSummary{
		Plan:             principal.Plan,
		QueriesThisMonth: queries,
		MonthlyLimit:     principal.MonthlyLimit,
		RateLimit:        principal.RateLimitPerMinute,
		TokensThisMonth:  tokens.Total,
	}, nil
}
