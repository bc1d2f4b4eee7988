package app

import (
	"strings"
	"time"

	"github.com/charlesng35/authcore/internal/auth"
)

// Session store kinds accepted by auth.session.store.
const (
	SessionStoreMemory   = "memory"
	SessionStoreDatabase = "database"
	SessionStoreDual     = "dual"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionStoreConfig converts AuthConfig into session store parameters.
func (c AuthConfig) SessionStoreConfig() auth.SessionStoreConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}
	return auth.SessionStoreConfig{TTL: ttl, Retention: c.Session.Retention}
}

// SessionStoreKind normalises auth.session.store, defaulting to dual.
func (c AuthConfig) SessionStoreKind() string {
	switch kind := strings.ToLower(strings.TrimSpace(c.Session.Store)); kind {
	case SessionStoreMemory, SessionStoreDatabase:
		return kind
	default:
		return SessionStoreDual
	}
}

// LockoutConfig converts AuthConfig into lockout guard parameters.
func (c AuthConfig) LockoutConfig() auth.LockoutConfig {
	threshold := c.Lockout.Threshold
	if threshold <= 0 {
		threshold = auth.DefaultLockoutThreshold
	}

	duration := c.Lockout.Duration
	if duration <= 0 {
		duration = auth.DefaultLockoutDuration
	}

	window := c.Lockout.Window
	if window <= 0 {
		window = duration
	}

	return auth.LockoutConfig{
		Threshold: threshold,
		Duration:  duration,
		Window:    window,
	}
}

// PasswordResetConfig converts AuthConfig into password reset ledger parameters.
func (c AuthConfig) PasswordResetConfig() auth.PasswordResetConfig {
	ttl := c.PasswordReset.TTL
	if ttl <= 0 {
		ttl = auth.DefaultResetTokenTTL
	}

	length := c.PasswordReset.TokenLength
	if length <= 0 {
		length = auth.DefaultResetTokenLength
	}

	return auth.PasswordResetConfig{
		TTL:         ttl,
		TokenLength: length,
	}
}

// ServiceConfig converts AuthConfig into authentication service options.
func (c AuthConfig) ServiceConfig() auth.ServiceConfig {
	return auth.ServiceConfig{KeyLockoutByIP: c.Lockout.KeyByIP}
}

// AccessTokenTTL reports the effective access token lifetime.
func (c AuthConfig) AccessTokenTTL() time.Duration {
	return c.JWTServiceConfig().AccessTokenTTL
}
