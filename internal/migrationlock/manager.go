package migrationlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultPollInterval = time.Second
	releaseTimeout      = 10 * time.Second
)

// Config tunes how long a process waits for the migration lock.
type Config struct {
	LockID       int64
	Timeout      time.Duration
	PollInterval time.Duration
	Clock        func() time.Time
}

// Manager runs work under the migration lock.
//
// State machine: Idle -> TryAcquire ok -> Holding -> release -> Idle.
// Idle -> TryAcquire fails -> Waiting -> (poll ok) Holding | (timeout) Idle, unacquired.
type Manager struct {
	locker  Locker
	lockID  int64
	timeout time.Duration
	poll    time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewManager constructs a Manager around the supplied backend.
func NewManager(locker Locker, cfg Config) (*Manager, error) {
	if locker == nil {
		return nil, errors.New("migration lock: locker is required")
	}

	lockID := cfg.LockID
	if lockID == 0 {
		lockID = DefaultLockID
	}

	timeout := cfg.Timeout
	if timeout < 0 {
		timeout = 0
	} else if timeout == 0 {
		timeout = defaultTimeout
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &Manager{
		locker:  locker,
		lockID:  lockID,
		timeout: timeout,
		poll:    poll,
		now:     clock,
		log:     logger.WithModule("migrationlock"),
	}, nil
}

// LockID returns the identifier the manager locks on.
func (m *Manager) LockID() int64 {
	return m.lockID
}

// TryAcquire makes a single non-blocking attempt.
func (m *Manager) TryAcquire(ctx context.Context) (Lease, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	lease, ok, err := m.locker.TryAcquire(ctx, m.lockID)
	if err != nil {
		return nil, false, fmt.Errorf("migration lock: try acquire: %w", err)
	}
	return lease, ok, nil
}

// Acquire waits up to the configured timeout for the lock.
func (m *Manager) Acquire(ctx context.Context) (Lease, error) {
	return m.AcquireWithin(ctx, m.timeout)
}

// AcquireWithin polls the backend every poll interval until the lock is held, the
// timeout elapses (ErrLockTimeout) or ctx is cancelled (ctx.Err()).
func (m *Manager) AcquireWithin(ctx context.Context, timeout time.Duration) (Lease, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := m.now()

	lease, ok, err := m.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		m.observeWait(start, "acquired")
		return lease, nil
	}
	if timeout <= 0 {
		m.observeWait(start, "timeout")
		return nil, ErrLockTimeout
	}

	m.log.Info("migration lock busy; waiting",
		zap.Int64("lock_id", m.lockID),
		zap.Duration("timeout", timeout),
		zap.Duration("poll_interval", m.poll),
	)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				m.observeWait(start, "cancelled")
				return nil, err
			}
			m.observeWait(start, "timeout")
			return nil, ErrLockTimeout
		case <-ticker.C:
			lease, ok, err := m.TryAcquire(ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				m.observeWait(start, "acquired")
				return lease, nil
			}
		}
	}
}

// Run executes fn while holding the lock. It reports acquired=false with a nil
// error when the wait timed out. A failing fn is returned wrapped in
// ErrMigrationExecutionFailed; the lock is released on every exit path,
// including panics.
func (m *Manager) Run(ctx context.Context, fn func(context.Context) error) (acquired bool, err error) {
	if fn == nil {
		return false, errors.New("migration lock: run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lease, err := m.Acquire(ctx)
	if errors.Is(err, ErrLockTimeout) {
		m.log.Warn("migration lock not acquired", zap.Int64("lock_id", m.lockID))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := lease.Release(releaseCtx); relErr != nil {
			m.log.Error("release migration lock", zap.Int64("lock_id", m.lockID), zap.Error(relErr))
			if err == nil {
				err = fmt.Errorf("migration lock: release: %w", relErr)
			}
		}
	}()

	m.log.Info("migration lock acquired", zap.Int64("lock_id", m.lockID))

	if runErr := fn(ctx); runErr != nil {
		return true, fmt.Errorf("%w: %w", ErrMigrationExecutionFailed, runErr)
	}
	return true, nil
}

func (m *Manager) observeWait(start time.Time, outcome string) {
	metrics.MigrationLockWait.WithLabelValues(outcome).Observe(m.now().Sub(start).Seconds())
}
