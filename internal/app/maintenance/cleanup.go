package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/pkg/logger"
)

const (
	defaultSessionSpec = "@hourly"
	defaultPruneSpec   = "@every 30m"
)

// SessionSweeper marks expired sessions revoked.
type SessionSweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: sweeping expired sessions and
// pruning expired cache entries.
type Cleaner struct {
	sessions SessionSweeper
	pruners  []cache.Pruner
	cron     *cron.Cron
	log      *zap.Logger

	sessionSchedule string
	pruneSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithPruner registers a cache store whose expired entries should be removed.
func WithPruner(p cache.Pruner) Option {
	return func(cleaner *Cleaner) {
		if p != nil {
			cleaner.pruners = append(cleaner.pruners, p)
		}
	}
}

// WithSessionSchedule overrides the cron specification for the session sweep.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithPruneSchedule overrides the cron specification for cache pruning.
func WithPruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pruneSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil sweeper skips the session job.
func NewCleaner(sessions SessionSweeper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		sessionSchedule: defaultSessionSpec,
		pruneSchedule:   defaultPruneSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.sessions != nil || len(c.pruners) > 0
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sweepSessions(context.Background()); err != nil {
				c.log.Warn("session sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule session sweep: %w", err)
		}
	}

	if len(c.pruners) > 0 {
		if _, err := c.cron.AddFunc(c.pruneSchedule, func() {
			if _, err := c.pruneCaches(context.Background()); err != nil {
				c.log.Warn("cache prune failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule cache prune: %w", err)
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.sessions != nil {
		if _, err := c.sweepSessions(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if _, err := c.pruneCaches(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (c *Cleaner) sweepSessions(ctx context.Context) (int64, error) {
	count, err := c.sessions.SweepExpiredSessions(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		c.log.Info("expired sessions swept", zap.Int64("count", count))
	}
	return count, nil
}

func (c *Cleaner) pruneCaches(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  error
	)
	for _, p := range c.pruners {
		n, err := p.PruneExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: prune cache: %w", err))
			continue
		}
		total += n
	}
	if total > 0 {
		c.log.Debug("expired cache entries pruned", zap.Int64("count", total))
	}
	return total, errs
}
