package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity types appended to the session activity log.
const (
	ActivityLogin   = "login"
	ActivityRequest = "request"
	ActivityLogout  = "logout"
)

// SessionActivity is an append-only audit row. SessionID is a weak reference and
// may outlive the session it points at.
type SessionActivity struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID      string    `gorm:"size:36;index" json:"session_id"`
	UserID         string    `gorm:"size:36;index" json:"user_id"`
	ActivityType   string    `gorm:"size:32;not null" json:"activity_type"`
	Endpoint       string    `gorm:"size:512" json:"endpoint"`
	Method         string    `gorm:"size:16" json:"method"`
	ClientIP       string    `gorm:"size:64" json:"client_ip"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	ResponseStatus int       `json:"response_status"`
}

func (a *SessionActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
