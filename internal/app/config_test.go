package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/migrationlock"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, 3306, cfg.Database.MySQL.Port)

	require.Equal(t, CacheBackendRedis, cfg.Cache.BackendKind())
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "authcore-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 12*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, SessionStoreDatabase, cfg.Auth.SessionStoreKind())
	require.Equal(t, 7, cfg.Auth.Lockout.Threshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Lockout.Duration)
	require.Equal(t, 10*time.Minute, cfg.Auth.Lockout.Window)
	require.True(t, cfg.Auth.Lockout.KeyByIP)
	require.Equal(t, 45*time.Minute, cfg.Auth.PasswordReset.TTL)
	require.Equal(t, 48, cfg.Auth.PasswordReset.TokenLength)

	require.False(t, cfg.Migration.AutoMigrate)
	require.Equal(t, int64(4242), cfg.Migration.LockID)
	require.Equal(t, 2*time.Minute, cfg.Migration.Timeout)
	require.Equal(t, 500*time.Millisecond, cfg.Migration.PollInterval)
	require.False(t, cfg.Migration.SkipOnTimeout)
	require.True(t, cfg.Migration.UseRedisLocker())

	require.Equal(t, "@every 15m", cfg.Maintenance.SessionSweep)
	require.Equal(t, "@daily", cfg.Maintenance.CachePrune)
	require.True(t, cfg.Maintenance.RunOnShutdown)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, CacheBackendDatabase, cfg.Cache.BackendKind())
	require.Equal(t, SessionStoreDual, cfg.Auth.SessionStoreKind())
	require.Equal(t, 24*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, time.Hour, cfg.Auth.SessionStoreConfig().Retention)
	require.Equal(t, 5, cfg.Auth.Lockout.Threshold)
	require.True(t, cfg.Migration.AutoMigrate)
	require.True(t, cfg.Migration.SkipOnTimeout)
	require.Equal(t, migrationlock.DefaultLockID, cfg.Migration.LockID)
	require.Equal(t, time.Minute, cfg.Migration.Timeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("AUTHCORE_AUTH_LOCKOUT_THRESHOLD", "3")
	t.Setenv("AUTHCORE_AUTH_SESSION_STORE", "memory")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Auth.Lockout.Threshold)
	require.Equal(t, SessionStoreMemory, cfg.Auth.SessionStoreKind())
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Session: SessionSettings{TTL: 10 * time.Hour},
			Lockout: LockoutSettings{
				Threshold: 4,
				Duration:  10 * time.Minute,
				KeyByIP:   true,
			},
			PasswordReset: PasswordResetSettings{
				TTL:         time.Hour,
				TokenLength: 40,
			},
		},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.Auth.JWTServiceConfig())

	require.Equal(t, 10*time.Hour, cfg.Auth.SessionStoreConfig().TTL)

	require.Equal(t, auth.LockoutConfig{
		Threshold: 4,
		Duration:  10 * time.Minute,
		Window:    10 * time.Minute,
	}, cfg.Auth.LockoutConfig())

	require.Equal(t, auth.PasswordResetConfig{
		TTL:         time.Hour,
		TokenLength: 40,
	}, cfg.Auth.PasswordResetConfig())

	require.True(t, cfg.Auth.ServiceConfig().KeyLockoutByIP)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, auth.DefaultSessionTTL, cfg.SessionStoreConfig().TTL)
	require.Equal(t, SessionStoreDual, cfg.SessionStoreKind())

	lockout := cfg.LockoutConfig()
	require.Equal(t, auth.DefaultLockoutThreshold, lockout.Threshold)
	require.Equal(t, auth.DefaultLockoutDuration, lockout.Duration)
	require.Equal(t, auth.DefaultLockoutDuration, lockout.Window)

	reset := cfg.PasswordResetConfig()
	require.Equal(t, auth.DefaultResetTokenTTL, reset.TTL)
	require.Equal(t, auth.DefaultResetTokenLength, reset.TokenLength)
}

func TestCacheBackendRequiresEnabledRedis(t *testing.T) {
	cfg := CacheConfig{Backend: "redis"}
	require.Equal(t, CacheBackendDatabase, cfg.BackendKind())

	cfg.Redis.Enabled = true
	require.Equal(t, CacheBackendRedis, cfg.BackendKind())

	cfg.Backend = "MEMORY"
	require.Equal(t, CacheBackendMemory, cfg.BackendKind())
}

func TestMigrationManagerConfig(t *testing.T) {
	var cfg MigrationConfig
	require.Equal(t, migrationlock.DefaultLockID, cfg.ManagerConfig().LockID)
	require.False(t, cfg.UseRedisLocker())

	cfg = MigrationConfig{LockID: 9, Timeout: time.Second, PollInterval: 10 * time.Millisecond, Locker: "Redis"}
	require.Equal(t, migrationlock.Config{LockID: 9, Timeout: time.Second, PollInterval: 10 * time.Millisecond}, cfg.ManagerConfig())
	require.True(t, cfg.UseRedisLocker())
}
