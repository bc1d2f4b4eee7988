package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session revocation reasons recorded on terminated sessions.
const (
	RevocationUserLogout    = "user_logout"
	RevocationLogoutAll     = "logout_all"
	RevocationExpired       = "expired"
	RevocationRevoked       = "revoked"
	RevocationPasswordReset = "password_reset"
)

// Session is the server-side record of one authenticated device login. Bearer
// tokens reference it by ID; a token is only honoured while its session is active.
type Session struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	UserID            string            `gorm:"size:36;not null;index" json:"user_id"`
	ClientIP          string            `gorm:"size:64" json:"client_ip"`
	UserAgent         string            `gorm:"size:512" json:"user_agent"`
	DeviceFingerprint *string           `gorm:"size:128" json:"device_fingerprint,omitempty"`
	LoginMethod       string            `gorm:"size:32;not null;default:password" json:"login_method"`
	Claims            datatypes.JSONMap `json:"-"`
	CreatedAt         time.Time         `gorm:"index" json:"created_at"`
	LastActivity      time.Time         `json:"last_activity"`
	ExpiresAt         time.Time         `gorm:"index" json:"expires_at"`
	IsActive          bool              `gorm:"not null;index" json:"is_active"`
	RevokedAt         *time.Time        `json:"revoked_at,omitempty"`
	RevocationReason  *string           `gorm:"size:64" json:"revocation_reason,omitempty"`
	RequestCount      int64             `gorm:"not null;default:0" json:"request_count"`
}

// Live reports whether the session can still back an authenticated request.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.IsActive && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// MarkRevoked applies the revoked state in memory. Already revoked sessions are left untouched.
func (s *Session) MarkRevoked(at time.Time, reason string) bool {
	if s == nil || s.RevokedAt != nil {
		return false
	}
	s.IsActive = false
	revokedAt := at
	s.RevokedAt = &revokedAt
	r := reason
	s.RevocationReason = &r
	return true
}

// Clone returns a deep copy safe to hand to callers outside a store's lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cpy := *s
	if s.DeviceFingerprint != nil {
		fp := *s.DeviceFingerprint
		cpy.DeviceFingerprint = &fp
	}
	if s.RevokedAt != nil {
		at := *s.RevokedAt
		cpy.RevokedAt = &at
	}
	if s.RevocationReason != nil {
		reason := *s.RevocationReason
		cpy.RevocationReason = &reason
	}
	if s.Claims != nil {
		cpy.Claims = make(datatypes.JSONMap, len(s.Claims))
		for k, v := range s.Claims {
			cpy.Claims[k] = v
		}
	}
	return &cpy
}
