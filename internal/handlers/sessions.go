package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
)

type SessionHandler struct {
	svc *iauth.Service
}

func NewSessionHandler(svc *iauth.Service) (*SessionHandler, error) {
	if svc == nil {
		return nil, errors.New("HANDLER_INIT", "auth service is required", http.StatusInternalServerError)
	}
	return &SessionHandler{svc: svc}, nil
}

type sessionView struct {
	ID               string     `json:"id"`
	ClientIP         string     `json:"client_ip"`
	UserAgent        string     `json:"user_agent"`
	LoginMethod      string     `json:"login_method"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	ExpiresAt        time.Time  `json:"expires_at"`
	IsActive         bool       `json:"is_active"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason *string    `json:"revocation_reason,omitempty"`
	RequestCount     int64      `json:"request_count"`
	Current          bool       `json:"current"`
}

func newSessionView(s models.Session, currentID string) sessionView {
	return sessionView{
		ID:               s.ID,
		ClientIP:         s.ClientIP,
		UserAgent:        s.UserAgent,
		LoginMethod:      s.LoginMethod,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.LastActivity,
		ExpiresAt:        s.ExpiresAt,
		IsActive:         s.IsActive,
		RevokedAt:        s.RevokedAt,
		RevocationReason: s.RevocationReason,
		RequestCount:     s.RequestCount,
		Current:          s.ID == currentID,
	}
}

// GET /api/sessions
//
// Revoked sessions are included unless active=true is passed.
func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	sessions, err := h.svc.ListSessions(requestContext(c), userID)
	if err != nil {
		response.Error(c, authError(err))
		return
	}

	activeOnly := c.Query("active") == "true"
	currentID, _ := currentSessionID(c)

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		if activeOnly && !s.IsActive {
			continue
		}
		views = append(views, newSessionView(s, currentID))
	}
	response.Success(c, http.StatusOK, views)
}

// GET /api/sessions/:id
//
// Sessions of other users answer 404.
func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	session, err := h.svc.LookupSession(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, authError(err))
		return
	}
	if session.UserID != userID {
		response.Error(c, authError(iauth.ErrSessionNotFound))
		return
	}

	currentID, _ := currentSessionID(c)
	response.Success(c, http.StatusOK, newSessionView(*session, currentID))
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Revoke(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.RevokeUserSession(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, authError(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}
