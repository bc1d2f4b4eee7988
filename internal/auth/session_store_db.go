package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// DatabaseSessionStore persists sessions through gorm. State transitions use
// conditional updates so concurrent writers cannot resurrect a revoked session.
type DatabaseSessionStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewDatabaseSessionStore constructs a durable store.
func NewDatabaseSessionStore(db *gorm.DB, cfg SessionStoreConfig) (*DatabaseSessionStore, error) {
	if db == nil {
		return nil, errors.New("session store: db is required")
	}
	ttl, now := cfg.normalise()
	return &DatabaseSessionStore{db: db, ttl: ttl, now: now}, nil
}

func (s *DatabaseSessionStore) Create(ctx context.Context, input NewSession) (*models.Session, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, errors.New("session store: user id is required")
	}
	session := newSessionRecord(input, s.now(), s.ttl)
	if err := s.insert(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *DatabaseSessionStore) insert(ctx context.Context, session *models.Session) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("session store: create session: %w", err)
	}
	return nil
}

func (s *DatabaseSessionStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.Lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkLive(session, s.now()); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *DatabaseSessionStore) Lookup(ctx context.Context, sessionID string) (*models.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	err := s.db.WithContext(ctx).Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: load session: %w", err)
	}
	return &session, nil
}

func (s *DatabaseSessionStore) Touch(ctx context.Context, sessionID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]any{
			"last_activity": s.now(),
			"request_count": gorm.Expr("request_count + ?", 1),
		})
	if result.Error != nil {
		return fmt.Errorf("session store: touch session: %w", result.Error)
	}
	return nil
}

func (s *DatabaseSessionStore) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("session store: list sessions: %w", err)
	}
	return sessions, nil
}

func (s *DatabaseSessionStore) Revoke(ctx context.Context, sessionID, reason string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Updates(revocationUpdates(s.now(), reason))
	if result.Error != nil {
		return false, fmt.Errorf("session store: revoke session: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("session store: revoke session: %w", err)
	}
	if count == 0 {
		return false, ErrSessionNotFound
	}
	return false, nil
}

func (s *DatabaseSessionStore) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND is_active = ? AND revoked_at IS NULL", userID, true).
		Updates(revocationUpdates(s.now(), reason))
	if result.Error != nil {
		return 0, fmt.Errorf("session store: revoke user sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *DatabaseSessionStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at <= ? AND is_active = ? AND revoked_at IS NULL", now, true).
		Updates(revocationUpdates(now, models.RevocationExpired))
	if result.Error != nil {
		return 0, fmt.Errorf("session store: sweep expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func revocationUpdates(now time.Time, reason string) map[string]any {
	return map[string]any{
		"is_active":         false,
		"revoked_at":        now,
		"revocation_reason": reason,
	}
}
