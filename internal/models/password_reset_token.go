package models

import "time"

// Revocation reasons for password reset tokens.
const ResetRevocationSuperseded = "superseded"

// PasswordResetToken stores the digest of a reset secret. Rows are never deleted;
// PreviousTokenID links a token to the one it superseded.
type PasswordResetToken struct {
	BaseModel

	TokenHash        string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserID           string     `gorm:"size:36;not null;index" json:"user_id"`
	Email            string     `gorm:"not null" json:"email"`
	ExpiresAt        time.Time  `gorm:"index" json:"expires_at"`
	UsedAt           *time.Time `json:"used_at,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason *string    `gorm:"size:64" json:"revocation_reason,omitempty"`
	ClientIP         string     `gorm:"size:64" json:"client_ip"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	PreviousTokenID  *string    `gorm:"size:36;index" json:"previous_token_id,omitempty"`
}
