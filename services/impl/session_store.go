package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/snipara/rlm/engine/tokens"
	"github.com/snipara/rlm/models"
)

const (
	sessionKeyPrefix = "session:context"

	// DefaultSessionTTL bounds how long injected context survives between
	// calls. Every write refreshes it.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore keeps per-session injected context in Redis.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessionStore creates a session store with the default TTL.
func NewSessionStore(redisClient *redis.Client) *SessionStore {
	return &SessionStore{redis: redisClient, ttl: DefaultSessionTTL}
}

func (s *SessionStore) key(projectID, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, projectID, sessionID)
}

// Get returns the session context, or nil when none exists.
func (s *SessionStore) Get(ctx context.Context, projectID, sessionID string) (*models.SessionContext, error) {
	data, err := s.redis.Get(ctx, s.key(projectID, sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}

	var sc models.SessionContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	return &sc, nil
}

// Set replaces or appends to the session's injected context and refreshes
// the TTL.
func (s *SessionStore) Set(ctx context.Context, projectID, sessionID, content string, appendContent bool) (*models.SessionContext, error) {
	sc, err := s.Get(ctx, projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		pid, _ := uuid.Parse(projectID)
		sc = &models.SessionContext{
			SessionID: sessionID,
			ProjectID: pid,
		}
	}

	if appendContent && sc.Content != "" {
		sc.Content = sc.Content + "\n\n" + content
	} else {
		sc.Content = content
	}
	sc.TokenCount = tokens.Count(sc.Content)
	sc.UpdatedAt = time.Now()

	if err := s.store(ctx, projectID, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Clear removes the session context.
func (s *SessionStore) Clear(ctx context.Context, projectID, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(projectID, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session context: %w", err)
	}
	return nil
}

// MarkTipsShown flips the session's tips flag, reporting whether it was
// already set. The first query of a session gets the tool guide appended;
// subsequent queries do not.
func (s *SessionStore) MarkTipsShown(ctx context.Context, projectID, sessionID string) (bool, error) {
	sc, err := s.Get(ctx, projectID, sessionID)
	if err != nil {
		return false, err
	}
	if sc == nil {
		pid, _ := uuid.Parse(projectID)
		sc = &models.SessionContext{
			SessionID: sessionID,
			ProjectID: pid,
			UpdatedAt: time.Now(),
		}
	}
	if sc.TipsShown {
		return true, nil
	}

	sc.TipsShown = true
	if err := s.store(ctx, projectID, sc); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SessionStore) store(ctx context.Context, projectID string, sc *models.SessionContext) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal session context: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(projectID, sc.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session context: %w", err)
	}
	return nil
}
