package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

// AuthHandler manages authentication flows (login/logout/password reset).
type AuthHandler struct {
	svc *iauth.Service
	log *zap.Logger
}

func NewAuthHandler(svc *iauth.Service) (*AuthHandler, error) {
	if svc == nil {
		return nil, errors.New("HANDLER_INIT", "auth service is required", http.StatusInternalServerError)
	}
	return &AuthHandler{svc: svc, log: logger.WithModule("handlers.auth")}, nil
}

type loginRequest struct {
	Identifier        string `json:"identifier" validate:"required,notblank,max=255"`
	Password          string `json:"password" validate:"required,max=1024"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"omitempty,max=128"`
}

type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	ExpiresIn   int         `json:"expires_in"`
	SessionID   string      `json:"session_id"`
	User        userSummary `json:"user"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.svc.Login(requestContext(c), iauth.LoginInput{
		Identifier:        strings.TrimSpace(req.Identifier),
		Password:          req.Password,
		ClientIP:          c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	payload := loginResponse{
		AccessToken: result.Token,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		ExpiresIn:   int(time.Until(result.ExpiresAt).Seconds()),
		SessionID:   result.Session.ID,
	}
	if result.User != nil {
		payload.User = userSummary{ID: result.User.ID, Username: result.User.Username, Email: result.User.Email}
	}

	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid, ok := currentSessionID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.Logout(requestContext(c), sid); err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// POST /api/auth/logout_all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	count, err := h.svc.LogoutAll(requestContext(c), userID, "")
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": count})
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

// POST /api/auth/password/forgot
//
// The response is identical whether or not the address belongs to an account,
// including when issuing or delivering the token fails.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.svc.RequestPasswordReset(requestContext(c), iauth.PasswordResetInput{
		Email:     strings.TrimSpace(req.Email),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.log.Error("password reset request failed", zap.Error(err))
	}

	response.Success(c, http.StatusAccepted, gin.H{"accepted": true})
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required,notblank"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResetPassword(requestContext(c), strings.TrimSpace(req.Token), req.Password); err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

func (h *AuthHandler) writeError(c *gin.Context, err error) {
	appErr := authError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if retry := retryAfterHeader(appErr); retry != "" {
		c.Header("Retry-After", retry)
	}
	response.Error(c, appErr)
}
