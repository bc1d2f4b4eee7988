package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/charlesng35/authcore/internal/models"
)

// DefaultSessionTTL is the fallback lifetime of a session record.
const DefaultSessionTTL = 24 * time.Hour

// DefaultSessionRetention is how long the memory store keeps a session after it
// stopped being live.
const DefaultSessionRetention = time.Hour

// DefaultLoginMethod labels sessions created by a password login.
const DefaultLoginMethod = "password"

// NewSession describes the session to create at login time.
type NewSession struct {
	UserID            string
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
	LoginMethod       string
	Claims            map[string]any
}

// SessionStore is the capability set every session backend provides.
//
// Get enforces liveness and fails with ErrSessionNotFound, ErrSessionRevoked or
// ErrSessionExpired. Lookup returns the record in whatever state it is in.
// Revoke is idempotent: revoking an already revoked session reports false and
// no error. Only an unknown id is an error.
type SessionStore interface {
	Create(ctx context.Context, input NewSession) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	Lookup(ctx context.Context, sessionID string) (*models.Session, error)
	Touch(ctx context.Context, sessionID string) error
	ListForUser(ctx context.Context, userID string) ([]models.Session, error)
	Revoke(ctx context.Context, sessionID, reason string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error)
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionStoreConfig is shared by the store implementations.
type SessionStoreConfig struct {
	TTL time.Duration
	// Retention bounds how long the memory store keeps revoked or expired
	// sessions; SweepExpired evicts older ones. Durable rows are never evicted.
	Retention time.Duration
	Clock     func() time.Time
}

func (c SessionStoreConfig) normalise() (time.Duration, func() time.Time) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	clock := time.Now
	if c.Clock != nil {
		clock = c.Clock
	}
	return ttl, func() time.Time { return clock().UTC() }
}

func newSessionRecord(input NewSession, now time.Time, ttl time.Duration) *models.Session {
	method := strings.TrimSpace(input.LoginMethod)
	if method == "" {
		method = DefaultLoginMethod
	}

	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       strings.TrimSpace(input.UserID),
		ClientIP:     strings.TrimSpace(input.ClientIP),
		UserAgent:    strings.TrimSpace(input.UserAgent),
		LoginMethod:  method,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		IsActive:     true,
	}
	if fp := strings.TrimSpace(input.DeviceFingerprint); fp != "" {
		session.DeviceFingerprint = &fp
	}
	if len(input.Claims) > 0 {
		session.Claims = make(datatypes.JSONMap, len(input.Claims))
		for k, v := range input.Claims {
			session.Claims[k] = v
		}
	}
	return session
}

// checkLive maps a stored session onto the liveness errors returned by Get.
func checkLive(session *models.Session, now time.Time) error {
	if session.RevokedAt != nil || !session.IsActive {
		if session.RevocationReason != nil && *session.RevocationReason == models.RevocationExpired {
			return ErrSessionExpired
		}
		return ErrSessionRevoked
	}
	if !session.ExpiresAt.After(now) {
		return ErrSessionExpired
	}
	return nil
}
