package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/services"
)

// ActivityRecorder appends a session activity entry. Implementations must not
// fail the request.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, entry services.ActivityEntry)
}

// Activity records one request activity per authenticated request once the
// handler has produced a status. It must run after Auth.
func Activity(recorder ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		sessionID := c.GetString(CtxSessionIDKey)
		if recorder == nil || sessionID == "" {
			return
		}

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		recorder.RecordActivity(context.WithoutCancel(c.Request.Context()), services.ActivityEntry{
			SessionID:      sessionID,
			UserID:         c.GetString(CtxUserIDKey),
			ActivityType:   models.ActivityRequest,
			Endpoint:       endpoint,
			Method:         c.Request.Method,
			ClientIP:       c.ClientIP(),
			ResponseStatus: c.Writer.Status(),
		})
	}
}
