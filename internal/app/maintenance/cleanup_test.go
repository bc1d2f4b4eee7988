package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	testutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	store, err := iauth.NewDatabaseSessionStore(db, iauth.SessionStoreConfig{TTL: time.Hour, Clock: clock.Now})
	require.NoError(t, err)

	expired, err := store.Create(ctx, iauth.NewSession{UserID: "cleanup-user"})
	require.NoError(t, err)
	clock.current = clock.current.Add(30 * time.Minute)
	active, err := store.Create(ctx, iauth.NewSession{UserID: "cleanup-user"})
	require.NoError(t, err)
	clock.current = clock.current.Add(45 * time.Minute)

	cacheStore := cache.NewDatabaseStore(db, cache.WithDatabaseClock(clock.Now))
	require.NoError(t, cacheStore.Set(ctx, "stale", []byte("x"), time.Minute))
	require.NoError(t, cacheStore.Set(ctx, "fresh", []byte("y"), 2*time.Hour))
	clock.current = clock.current.Add(2 * time.Minute)

	c := NewCleaner(storeSweeper{store},
		WithPruner(cacheStore),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, c.RunOnce(ctx))

	swept, err := store.Lookup(ctx, expired.ID)
	require.NoError(t, err)
	require.False(t, swept.IsActive)
	require.Equal(t, models.RevocationExpired, *swept.RevocationReason)

	live, err := store.Lookup(ctx, active.ID)
	require.NoError(t, err)
	require.True(t, live.IsActive)

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCleanerAggregatesErrors(t *testing.T) {
	sweepErr := errors.New("sweep down")
	pruneErr := errors.New("prune down")

	c := NewCleaner(failingSweeper{err: sweepErr}, WithPruner(failingPruner{err: pruneErr}))
	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, sweepErr)
	require.ErrorIs(t, err, pruneErr)
	require.Len(t, multierr.Errors(err), 2)
}

func TestCleanerStartSchedulesJobs(t *testing.T) {
	sweeper := &countingSweeper{}
	c := NewCleaner(sweeper,
		WithSessionSchedule("@every 10ms"),
		WithPruner(cache.NewMemoryStore(time.Now)),
		WithPruneSchedule("@every 10ms"),
	)
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return sweeper.calls() > 0 }, 3*time.Second, 10*time.Millisecond)
	<-c.Stop().Done()
}

func TestCleanerRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(&countingSweeper{}, WithSessionSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobs(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	<-c.Stop().Done()
}

type storeSweeper struct {
	store iauth.SessionStore
}

func (s storeSweeper) SweepExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.SweepExpired(ctx)
}

type failingSweeper struct{ err error }

func (f failingSweeper) SweepExpiredSessions(context.Context) (int64, error) { return 0, f.err }

type failingPruner struct{ err error }

func (f failingPruner) PruneExpired(context.Context) (int64, error) { return 0, f.err }

type countingSweeper struct {
	mu sync.Mutex
	n  int
}

func (c *countingSweeper) SweepExpiredSessions(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return 0, nil
}

func (c *countingSweeper) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
