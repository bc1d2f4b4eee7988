package app

import (
	"strings"

	"github.com/charlesng35/authcore/internal/cache"
)

// Cache backends accepted by cache.backend.
const (
	CacheBackendMemory   = "memory"
	CacheBackendDatabase = "database"
	CacheBackendRedis    = "redis"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// BackendKind normalises cache.backend. Redis is only selected when it is enabled.
func (c CacheConfig) BackendKind() string {
	switch kind := strings.ToLower(strings.TrimSpace(c.Backend)); kind {
	case CacheBackendMemory:
		return kind
	case CacheBackendRedis:
		if c.Redis.Enabled {
			return kind
		}
		return CacheBackendDatabase
	default:
		return CacheBackendDatabase
	}
}
