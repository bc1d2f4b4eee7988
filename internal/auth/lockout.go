package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
	lockoutKeyPrefix        = "lockout:"
)

// LockoutConfig tunes the Account Lockout Guard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	// Window is the rolling period failures are counted over. The counter expires
	// once Window passes without a new failure. Defaults to Duration.
	Window time.Duration
	Clock  func() time.Time
}

// FailedAttemptCounter is the lockout state of one principal key.
type FailedAttemptCounter struct {
	PrincipalKey   string
	Count          int64
	FirstAttemptAt time.Time
	LockedUntil    *time.Time
}

// LockoutGuard tracks failed logins per principal and enforces temporary lockout.
type LockoutGuard struct {
	store     cache.Store
	threshold int64
	duration  time.Duration
	window    time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// PrincipalKey is the lockout key for a username or email.
func PrincipalKey(identifier string) string {
	return "user:" + strings.ToLower(strings.TrimSpace(identifier))
}

// IPKey is the lockout key for a client address.
func IPKey(ip string) string {
	return "ip:" + strings.TrimSpace(ip)
}

// NewLockoutGuard constructs a guard over the shared cache store.
func NewLockoutGuard(store cache.Store, cfg LockoutConfig) (*LockoutGuard, error) {
	if store == nil {
		return nil, errors.New("lockout: cache store is required")
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}

	window := cfg.Window
	if window <= 0 {
		window = duration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LockoutGuard{
		store:     store,
		threshold: int64(threshold),
		duration:  duration,
		window:    window,
		now:       clock,
		log:       logger.WithModule("lockout"),
	}, nil
}

func countKey(key string) string  { return lockoutKeyPrefix + key + ":count" }
func firstKey(key string) string  { return lockoutKeyPrefix + key + ":first" }
func lockedKey(key string) string { return lockoutKeyPrefix + key + ":locked" }

// IsLocked reports whether key is locked and for how much longer.
func (g *LockoutGuard) IsLocked(ctx context.Context, key string) (bool, time.Duration, error) {
	until, ok, err := g.readTime(ctx, lockedKey(key))
	if err != nil || !ok {
		return false, 0, err
	}
	remaining := until.Sub(g.now())
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// RecordFailedAttempt counts a failure. Reaching the threshold locks the key for
// the configured duration; the counter itself is left in place.
func (g *LockoutGuard) RecordFailedAttempt(ctx context.Context, key string) (FailedAttemptCounter, error) {
	now := g.now()

	count, _, err := g.store.IncrementWithTTL(ctx, countKey(key), g.window)
	if err != nil {
		return FailedAttemptCounter{}, fmt.Errorf("lockout: increment counter: %w", err)
	}

	first, ok, err := g.readTime(ctx, firstKey(key))
	if err != nil {
		return FailedAttemptCounter{}, err
	}
	if !ok || count == 1 {
		first = now
	}
	// keep the first-attempt marker alive exactly as long as the counter
	if err := g.writeTime(ctx, firstKey(key), first, g.window); err != nil {
		return FailedAttemptCounter{}, err
	}

	counter := FailedAttemptCounter{PrincipalKey: key, Count: count, FirstAttemptAt: first}

	if count < g.threshold {
		return counter, nil
	}

	locked, remaining, err := g.IsLocked(ctx, key)
	if err != nil {
		return counter, err
	}
	if locked {
		until := now.Add(remaining)
		counter.LockedUntil = &until
		return counter, nil
	}

	until := now.Add(g.duration)
	if err := g.writeTime(ctx, lockedKey(key), until, g.duration); err != nil {
		return counter, err
	}
	counter.LockedUntil = &until

	metrics.AccountLockouts.Inc()
	g.log.Warn("principal locked out",
		zap.String("key", key),
		zap.Int64("failed_attempts", count),
		zap.Time("locked_until", until),
	)
	return counter, nil
}

// Clear drops the counter and any lock for key.
func (g *LockoutGuard) Clear(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, countKey(key), firstKey(key), lockedKey(key)); err != nil {
		return fmt.Errorf("lockout: clear: %w", err)
	}
	return nil
}

// status returns the current counter for key, if any.
func (g *LockoutGuard) status(ctx context.Context, key string) (FailedAttemptCounter, bool, error) {
	raw, ok, err := g.store.Get(ctx, countKey(key))
	if err != nil {
		return FailedAttemptCounter{}, false, fmt.Errorf("lockout: read counter: %w", err)
	}

	counter := FailedAttemptCounter{PrincipalKey: key}
	if ok {
		counter.Count, _ = strconv.ParseInt(string(raw), 10, 64)
		if first, found, err := g.readTime(ctx, firstKey(key)); err != nil {
			return FailedAttemptCounter{}, false, err
		} else if found {
			counter.FirstAttemptAt = first
		}
	}

	locked, remaining, err := g.IsLocked(ctx, key)
	if err != nil {
		return FailedAttemptCounter{}, false, err
	}
	if locked {
		until := g.now().Add(remaining)
		counter.LockedUntil = &until
	}

	return counter, ok || locked, nil
}

func (g *LockoutGuard) readTime(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("lockout: read %s: %w", key, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	value, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, nil
	}
	return value, true, nil
}

func (g *LockoutGuard) writeTime(ctx context.Context, key string, value time.Time, ttl time.Duration) error {
	if err := g.store.Set(ctx, key, []byte(value.UTC().Format(time.RFC3339Nano)), ttl); err != nil {
		return fmt.Errorf("lockout: write %s: %w", key, err)
	}
	return nil
}
