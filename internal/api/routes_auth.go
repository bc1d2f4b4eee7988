package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

func registerAuthRoutes(public, api *gin.RouterGroup, handler *handlers.AuthHandler) {
	public.POST("/login", handler.Login)
	public.POST("/password/forgot", handler.ForgotPassword)
	public.POST("/password/reset", handler.ResetPassword)

	api.POST("/auth/logout", handler.Logout)
	api.POST("/auth/logout_all", handler.LogoutAll)
}
