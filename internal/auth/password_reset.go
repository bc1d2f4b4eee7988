package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	// DefaultResetTokenTTL is the fallback validity of a password reset token.
	DefaultResetTokenTTL = 30 * time.Minute
	// DefaultResetTokenLength is the number of random bytes in a raw token.
	DefaultResetTokenLength = 32
)

// PasswordResetConfig tunes the reset ledger.
type PasswordResetConfig struct {
	TTL         time.Duration
	TokenLength int
	Clock       func() time.Time
}

// ResetRequest carries the context of a reset request.
type ResetRequest struct {
	UserID    string
	Email     string
	ClientIP  string
	UserAgent string
}

// PasswordResetLedger issues, verifies and consumes single-use reset tokens.
// Only SHA-256 digests are stored and rows are never deleted.
type PasswordResetLedger struct {
	db       *gorm.DB
	ttl      time.Duration
	tokenLen int
	now      func() time.Time
}

// NewPasswordResetLedger constructs a ledger on the primary database.
func NewPasswordResetLedger(db *gorm.DB, cfg PasswordResetConfig) (*PasswordResetLedger, error) {
	if db == nil {
		return nil, errors.New("password reset: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	length := cfg.TokenLength
	if length <= 0 {
		length = DefaultResetTokenLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &PasswordResetLedger{
		db:       db,
		ttl:      ttl,
		tokenLen: length,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// Request issues a new token for the user. Outstanding tokens of the user are
// revoked as superseded and the new token links to the most recent of them.
// The raw token is returned once and cannot be recovered later.
func (l *PasswordResetLedger) Request(ctx context.Context, req ResetRequest) (string, *models.PasswordResetToken, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return "", nil, errors.New("password reset: user id is required")
	}

	raw, err := crypto.GenerateToken(l.tokenLen)
	if err != nil {
		return "", nil, fmt.Errorf("password reset: generate token: %w", err)
	}

	now := l.now()
	record := &models.PasswordResetToken{
		BaseModel: models.BaseModel{CreatedAt: now},
		TokenHash: crypto.HashToken(raw),
		UserID:    req.UserID,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		ExpiresAt: now.Add(l.ttl),
		ClientIP:  strings.TrimSpace(req.ClientIP),
		UserAgent: strings.TrimSpace(req.UserAgent),
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var previous models.PasswordResetToken
		err := tx.Where("user_id = ? AND used_at IS NULL AND revoked_at IS NULL", req.UserID).
			Order("created_at DESC").
			Take(&previous).Error
		switch {
		case err == nil:
			record.PreviousTokenID = &previous.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL AND revoked_at IS NULL", req.UserID).
			Updates(map[string]any{
				"revoked_at":        now,
				"revocation_reason": models.ResetRevocationSuperseded,
			}).Error; err != nil {
			return err
		}

		return tx.Create(record).Error
	})
	if err != nil {
		return "", nil, fmt.Errorf("password reset: store token: %w", err)
	}

	metrics.PasswordResets.WithLabelValues("requested").Inc()
	return raw, record, nil
}

// Verify resolves a raw token to its record and checks it can still be used.
func (l *PasswordResetLedger) Verify(ctx context.Context, raw string) (*models.PasswordResetToken, error) {
	return l.verify(l.db.WithContext(ctx), raw)
}

func (l *PasswordResetLedger) verify(tx *gorm.DB, raw string) (*models.PasswordResetToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrResetTokenInvalid
	}

	var record models.PasswordResetToken
	err := tx.Take(&record, "token_hash = ?", crypto.HashToken(raw)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResetTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("password reset: load token: %w", err)
	}

	switch {
	case !l.now().Before(record.ExpiresAt):
		return nil, ErrResetTokenExpired
	case record.UsedAt != nil:
		return nil, ErrResetTokenAlreadyUsed
	case record.RevokedAt != nil:
		return nil, ErrResetTokenRevoked
	}
	return &record, nil
}

// Consume marks the token used and stores newPasswordHash on the user in one
// transaction. Of two concurrent calls with the same token exactly one
// succeeds; the other fails with ErrResetTokenAlreadyUsed.
func (l *PasswordResetLedger) Consume(ctx context.Context, raw, newPasswordHash string) (*models.PasswordResetToken, error) {
	if strings.TrimSpace(newPasswordHash) == "" {
		return nil, errors.New("password reset: new password hash is required")
	}

	var consumed *models.PasswordResetToken
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := l.verify(tx, raw)
		if err != nil {
			return err
		}

		now := l.now()
		result := tx.Model(&models.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL AND revoked_at IS NULL", record.ID).
			Update("used_at", now)
		if result.Error != nil {
			return fmt.Errorf("password reset: mark used: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrResetTokenAlreadyUsed
		}

		result = tx.Model(&models.User{}).
			Where("id = ?", record.UserID).
			Update("password", newPasswordHash)
		if result.Error != nil {
			return fmt.Errorf("password reset: update credential: %w", result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrResetTokenInvalid
		}

		record.UsedAt = &now
		consumed = record
		return nil
	})
	if err != nil {
		metrics.PasswordResets.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.PasswordResets.WithLabelValues("consumed").Inc()
	return consumed, nil
}
