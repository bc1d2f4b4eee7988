package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/app"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
)

const (
	publicAuthRateLimit  = 20
	publicAuthRateWindow = time.Minute
)

// RouterDeps carries the long-lived services the HTTP surface needs.
type RouterDeps struct {
	DB        *gorm.DB
	Auth      *iauth.Service
	Config    *app.Config
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	authHandler, err := handlers.NewAuthHandler(deps.Auth)
	if err != nil {
		return nil, err
	}
	sessionHandler, err := handlers.NewSessionHandler(deps.Auth)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, deps.DB)
	registerMetricsRoute(r, deps.Config)

	public := r.Group("/api/auth")
	public.Use(middleware.RateLimit(deps.RateStore, publicAuthRateLimit, publicAuthRateWindow))

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Auth))
	api.Use(middleware.Activity(deps.Auth))

	registerAuthRoutes(public, api, authHandler)
	registerSessionRoutes(api, sessionHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config) {
	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}
