package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the authcore backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Migration   MigrationConfig   `mapstructure:"migration"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	// Backend selects the lockout counter store: memory, database or redis.
	Backend string           `mapstructure:"backend"`
	Redis   RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT           JWTSettings           `mapstructure:"jwt"`
	Session       SessionSettings       `mapstructure:"session"`
	Lockout       LockoutSettings       `mapstructure:"lockout"`
	PasswordReset PasswordResetSettings `mapstructure:"password_reset"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures session lifetimes and the backing store.
type SessionSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
	// Retention is how long the in-process copy keeps sessions that are no
	// longer live.
	Retention time.Duration `mapstructure:"retention"`
	// Store is one of memory, database or dual.
	Store string `mapstructure:"store"`
}

// LockoutSettings configures the failed-login lockout guard.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
	Window    time.Duration `mapstructure:"window"`
	KeyByIP   bool          `mapstructure:"key_by_ip"`
}

// PasswordResetSettings configures reset token issuance.
type PasswordResetSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	TokenLength int           `mapstructure:"token_length"`
}

// MigrationConfig controls lock-gated schema migration at startup.
type MigrationConfig struct {
	AutoMigrate   bool          `mapstructure:"auto_migrate"`
	LockID        int64         `mapstructure:"lock_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SkipOnTimeout bool          `mapstructure:"skip_on_timeout"`
	// Locker overrides the backend picked from the database driver. Only
	// "redis" is recognised.
	Locker string `mapstructure:"locker"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SessionSweep  string `mapstructure:"session_sweep"`
	CachePrune    string `mapstructure:"cache_prune"`
	RunOnShutdown bool   `mapstructure:"run_on_shutdown"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authcore.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("cache.backend", "database")
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "authcore")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.session.store", "dual")
	v.SetDefault("auth.session.retention", "1h")
	v.SetDefault("auth.lockout.threshold", 5)
	v.SetDefault("auth.lockout.duration", "15m")
	v.SetDefault("auth.lockout.key_by_ip", false)
	v.SetDefault("auth.password_reset.ttl", "30m")
	v.SetDefault("auth.password_reset.token_length", 32)

	v.SetDefault("migration.auto_migrate", true)
	v.SetDefault("migration.lock_id", 72_616_481_003)
	v.SetDefault("migration.timeout", "60s")
	v.SetDefault("migration.poll_interval", "1s")
	v.SetDefault("migration.skip_on_timeout", true)
	v.SetDefault("migration.locker", "")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_sweep", "@hourly")
	v.SetDefault("maintenance.cache_prune", "@every 30m")
	v.SetDefault("maintenance.run_on_shutdown", true)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// LoadConfigFrom loads configuration from a directory or a file inside one. An
// empty path uses the default search locations.
func LoadConfigFrom(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return LoadConfig()
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return LoadConfig(path)
	case err == nil:
		return LoadConfig(filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	default:
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
