package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

func registerSessionRoutes(api *gin.RouterGroup, handler *handlers.SessionHandler) {
	api.GET("/sessions", handler.List)
	api.GET("/sessions/:id", handler.Get)
	api.DELETE("/sessions/:id", handler.Revoke)
}
