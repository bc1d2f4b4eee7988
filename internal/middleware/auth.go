package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/authcore/internal/auth"
	appErrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// Authenticator resolves a bearer token into a principal bound to a live session.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, token string) (*iauth.Principal, error)
}

// Auth enforces bearer authentication. A token whose session has been revoked
// or has expired is rejected even while its signature is still valid.
func Auth(authenticator Authenticator) gin.HandlerFunc {
	log := logger.WithModule("middleware.auth")

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := authenticator.AuthenticateRequest(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, iauth.ErrAuthenticationFailed) {
				c.Header("WWW-Authenticate", "Bearer")
				response.Error(c, appErrors.ErrUnauthorized.WithInternal(err))
			} else {
				log.Error("authenticate request", zap.Error(err))
				response.Error(c, appErrors.ErrServiceUnavailable.WithInternal(err))
			}
			c.Abort()
			return
		}

		c.Set(CtxPrincipalKey, principal)
		c.Set(CtxUserIDKey, principal.UserID)
		c.Set(CtxSessionIDKey, principal.Session.ID)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
