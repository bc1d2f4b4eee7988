package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/services"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Counters cache.Store
	Auth     *iauth.Service
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime opens storage, applies migrations under the migration lock
// and wires the authentication service and HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), nil, log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	dbCfg := cfg.Database.ConnectionConfig()
	stack.DB, err = database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	if cfg.Migration.AutoMigrate {
		if _, err := app.RunMigrations(ctx, cfg.Migration, stack.DB, stack.redisClient()); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	stack.Counters = selectCounterStore(cfg, stack, log)

	stack.Auth, err = buildAuthService(cfg, stack.DB, stack.Counters)
	if err != nil {
		return nil, err
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithSessionSchedule(cfg.Maintenance.SessionSweep),
		maintenance.WithPruneSchedule(cfg.Maintenance.CachePrune),
	}
	if pruner, ok := stack.Counters.(cache.Pruner); ok {
		cleanerOpts = append(cleanerOpts, maintenance.WithPruner(pruner))
	}
	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Auth, cleanerOpts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.RouterDeps{
		DB:        stack.DB,
		Auth:      stack.Auth,
		Config:    cfg,
		RateStore: middleware.NewRateStore(stack.Counters),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) redisClient() redis.UniversalClient {
	if s.Redis == nil {
		return nil
	}
	return s.Redis
}

func selectCounterStore(cfg *app.Config, stack *runtimeStack, log *zap.Logger) cache.Store {
	switch cfg.Cache.BackendKind() {
	case app.CacheBackendRedis:
		if stack.Redis != nil {
			return cache.NewRedisStore(stack.Redis)
		}
		log.Warn("redis counter store requested but redis is unavailable; using database")
		return cache.NewDatabaseStore(stack.DB)
	case app.CacheBackendMemory:
		return cache.NewMemoryStore(nil)
	default:
		return cache.NewDatabaseStore(stack.DB)
	}
}

func buildSessionStore(cfg *app.Config, db *gorm.DB) (iauth.SessionStore, error) {
	storeCfg := cfg.Auth.SessionStoreConfig()

	switch cfg.Auth.SessionStoreKind() {
	case app.SessionStoreMemory:
		return iauth.NewMemorySessionStore(storeCfg), nil
	case app.SessionStoreDatabase:
		return iauth.NewDatabaseSessionStore(db, storeCfg)
	default:
		durable, err := iauth.NewDatabaseSessionStore(db, storeCfg)
		if err != nil {
			return nil, err
		}
		return iauth.NewDualSessionStore(iauth.NewMemorySessionStore(storeCfg), durable)
	}
}

func buildAuthService(cfg *app.Config, db *gorm.DB, counters cache.Store) (*iauth.Service, error) {
	users, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	if err != nil {
		return nil, fmt.Errorf("initialise credential store: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessions, err := buildSessionStore(cfg, db)
	if err != nil {
		return nil, fmt.Errorf("initialise session store: %w", err)
	}

	lockout, err := iauth.NewLockoutGuard(counters, cfg.Auth.LockoutConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise lockout guard: %w", err)
	}

	resets, err := iauth.NewPasswordResetLedger(db, cfg.Auth.PasswordResetConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise password reset ledger: %w", err)
	}

	activity, err := services.NewActivityService(db, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise activity service: %w", err)
	}

	svc, err := iauth.NewService(iauth.ServiceDeps{
		Credentials: users,
		Sessions:    sessions,
		Tokens:      jwtSvc,
		Lockout:     lockout,
		Resets:      resets,
		Activity:    activity,
	}, cfg.Auth.ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}
	return svc, nil
}

// Shutdown gracefully stops background jobs and releases resources. A nil cfg
// skips the final maintenance run.
func (s *runtimeStack) Shutdown(ctx context.Context, cfg *app.Config, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		<-stopCtx.Done()
		if cfg != nil && cfg.Maintenance.RunOnShutdown {
			if err := s.Cleaner.RunOnce(ctx); err != nil {
				log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
			}
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}
