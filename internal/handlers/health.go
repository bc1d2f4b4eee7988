package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/pkg/response"
)

// Health returns a readiness payload. The database is pinged when db is non-nil.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		status := http.StatusOK

		if db != nil {
			if err := database.Ping(db); err != nil {
				checks["database"] = "down"
				status = http.StatusServiceUnavailable
			} else {
				checks["database"] = "ok"
			}
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}

		response.Success(c, status, gin.H{
			"status":     state,
			"checks":     checks,
			"checked_at": time.Now().UTC(),
		})
	}
}
