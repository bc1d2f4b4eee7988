package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func sessionStores(t *testing.T) map[string]func(t *testing.T, clock *testClock) SessionStore {
	t.Helper()
	return map[string]func(t *testing.T, clock *testClock) SessionStore{
		"memory": func(t *testing.T, clock *testClock) SessionStore {
			return NewMemorySessionStore(SessionStoreConfig{TTL: time.Hour, Clock: clock.Now})
		},
		"database": func(t *testing.T, clock *testClock) SessionStore {
			db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
			store, err := NewDatabaseSessionStore(db, SessionStoreConfig{TTL: time.Hour, Clock: clock.Now})
			require.NoError(t, err)
			return store
		},
		"dual": func(t *testing.T, clock *testClock) SessionStore {
			db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
			cfg := SessionStoreConfig{TTL: time.Hour, Clock: clock.Now}
			durable, err := NewDatabaseSessionStore(db, cfg)
			require.NoError(t, err)
			store, err := NewDualSessionStore(NewMemorySessionStore(cfg), durable)
			require.NoError(t, err)
			return store
		},
	}
}

func TestSessionStoreCreateAndGet(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			session, err := store.Create(ctx, NewSession{
				UserID:            "user-1",
				ClientIP:          "10.0.0.1",
				UserAgent:         "test-agent",
				DeviceFingerprint: "fp-1",
			})
			require.NoError(t, err)
			require.Len(t, session.ID, 36)
			require.True(t, session.IsActive)
			require.Equal(t, int64(0), session.RequestCount)
			require.Equal(t, DefaultLoginMethod, session.LoginMethod)
			require.True(t, session.CreatedAt.Equal(clock.Now()))
			require.True(t, session.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
			require.NotNil(t, session.DeviceFingerprint)
			require.Equal(t, "fp-1", *session.DeviceFingerprint)

			loaded, err := store.Get(ctx, session.ID)
			require.NoError(t, err)
			require.Equal(t, session.ID, loaded.ID)
			require.Equal(t, "10.0.0.1", loaded.ClientIP)

			_, err = store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrSessionNotFound)

			_, err = store.Create(ctx, NewSession{})
			require.Error(t, err)
		})
	}
}

func TestSessionStoreGetEnforcesExpiry(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			session, err := store.Create(ctx, NewSession{UserID: "user-1"})
			require.NoError(t, err)

			clock.Advance(time.Hour)
			_, err = store.Get(ctx, session.ID)
			require.ErrorIs(t, err, ErrSessionExpired)

			raw, err := store.Lookup(ctx, session.ID)
			require.NoError(t, err)
			require.True(t, raw.IsActive)
		})
	}
}

func TestSessionStoreTouch(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			session, err := store.Create(ctx, NewSession{UserID: "user-1"})
			require.NoError(t, err)

			clock.Advance(5 * time.Minute)
			require.NoError(t, store.Touch(ctx, session.ID))
			require.NoError(t, store.Touch(ctx, session.ID))

			loaded, err := store.Get(ctx, session.ID)
			require.NoError(t, err)
			require.Equal(t, int64(2), loaded.RequestCount)
			require.True(t, loaded.LastActivity.Equal(clock.Now()))
		})
	}
}

func TestSessionStoreRevokeIsIdempotent(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			session, err := store.Create(ctx, NewSession{UserID: "user-1"})
			require.NoError(t, err)

			clock.Advance(time.Minute)
			revoked, err := store.Revoke(ctx, session.ID, models.RevocationUserLogout)
			require.NoError(t, err)
			require.True(t, revoked)

			first, err := store.Lookup(ctx, session.ID)
			require.NoError(t, err)

			clock.Advance(time.Minute)
			revoked, err = store.Revoke(ctx, session.ID, models.RevocationRevoked)
			require.NoError(t, err)
			require.False(t, revoked)

			second, err := store.Lookup(ctx, session.ID)
			require.NoError(t, err)

			require.False(t, second.IsActive)
			require.NotNil(t, second.RevokedAt)
			require.True(t, first.RevokedAt.Equal(*second.RevokedAt))
			require.Equal(t, models.RevocationUserLogout, *second.RevocationReason)

			_, err = store.Get(ctx, session.ID)
			require.ErrorIs(t, err, ErrSessionRevoked)

			_, err = store.Revoke(ctx, "missing", models.RevocationRevoked)
			require.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestSessionStoreListAndRevokeAll(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			var ids []string
			for i := 0; i < 3; i++ {
				session, err := store.Create(ctx, NewSession{UserID: "user-1"})
				require.NoError(t, err)
				ids = append(ids, session.ID)
				clock.Advance(time.Second)
			}
			_, err := store.Create(ctx, NewSession{UserID: "user-2"})
			require.NoError(t, err)

			_, err = store.Revoke(ctx, ids[0], models.RevocationUserLogout)
			require.NoError(t, err)

			sessions, err := store.ListForUser(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, sessions, 3)
			require.Equal(t, ids[2], sessions[0].ID)
			require.Equal(t, ids[1], sessions[1].ID)
			require.Equal(t, ids[0], sessions[2].ID)
			require.False(t, sessions[2].IsActive)

			count, err := store.RevokeAllForUser(ctx, "user-1", models.RevocationLogoutAll)
			require.NoError(t, err)
			require.Equal(t, int64(2), count)

			count, err = store.RevokeAllForUser(ctx, "user-1", models.RevocationLogoutAll)
			require.NoError(t, err)
			require.Zero(t, count)

			others, err := store.ListForUser(ctx, "user-2")
			require.NoError(t, err)
			require.Len(t, others, 1)
			require.True(t, others[0].IsActive)
		})
	}
}

func TestSessionStoreSweepExpired(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			stale, err := store.Create(ctx, NewSession{UserID: "user-1"})
			require.NoError(t, err)

			clock.Advance(30 * time.Minute)
			fresh, err := store.Create(ctx, NewSession{UserID: "user-1"})
			require.NoError(t, err)

			clock.Advance(31 * time.Minute)
			count, err := store.SweepExpired(ctx)
			require.NoError(t, err)
			require.Equal(t, int64(1), count)

			swept, err := store.Lookup(ctx, stale.ID)
			require.NoError(t, err)
			require.False(t, swept.IsActive)
			require.NotNil(t, swept.RevokedAt)
			require.Equal(t, models.RevocationExpired, *swept.RevocationReason)

			_, err = store.Get(ctx, stale.ID)
			require.ErrorIs(t, err, ErrSessionExpired)

			_, err = store.Get(ctx, fresh.ID)
			require.NoError(t, err)

			count, err = store.SweepExpired(ctx)
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestMemoryStoreSweepEvictsStaleSessions(t *testing.T) {
	clock := newTestClock()
	store := NewMemorySessionStore(SessionStoreConfig{TTL: time.Hour, Retention: 30 * time.Minute, Clock: clock.Now})
	ctx := context.Background()

	revoked, err := store.Create(ctx, NewSession{UserID: "user-1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, NewSession{UserID: "user-1"})
	require.NoError(t, err)
	_, err = store.Create(ctx, NewSession{UserID: "user-2"})
	require.NoError(t, err)

	_, err = store.Revoke(ctx, revoked.ID, models.RevocationUserLogout)
	require.NoError(t, err)

	// still within retention
	clock.Advance(20 * time.Minute)
	count, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Len(t, store.sessions, 3)

	clock.Advance(20 * time.Minute)
	count, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Len(t, store.sessions, 2)
	_, err = store.Lookup(ctx, revoked.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// expired sessions are revoked first and evicted once retention has passed
	clock.Advance(30 * time.Minute)
	count, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.Len(t, store.sessions, 2)

	clock.Advance(31 * time.Minute)
	count, err = store.SweepExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, store.sessions)
	require.Empty(t, store.byUser)

	sessions, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestDualStoreSweepKeepsDurableRows(t *testing.T) {
	clock := newTestClock()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := SessionStoreConfig{TTL: time.Hour, Retention: time.Minute, Clock: clock.Now}

	durable, err := NewDatabaseSessionStore(db, cfg)
	require.NoError(t, err)
	memory := NewMemorySessionStore(cfg)
	store, err := NewDualSessionStore(memory, durable)
	require.NoError(t, err)

	ctx := context.Background()
	session, err := store.Create(ctx, NewSession{UserID: "user-1"})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	count, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Empty(t, memory.sessions)

	record, err := store.Lookup(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, record.IsActive)
	require.Equal(t, models.RevocationExpired, *record.RevocationReason)
}

func TestSessionStoreConcurrentCreate(t *testing.T) {
	for name, build := range sessionStores(t) {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			store := build(t, clock)
			ctx := context.Background()

			const workers = 10
			var wg sync.WaitGroup
			ids := make(chan string, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					session, err := store.Create(ctx, NewSession{UserID: "user-1"})
					if err == nil {
						ids <- session.ID
					}
				}()
			}
			wg.Wait()
			close(ids)

			seen := map[string]bool{}
			for id := range ids {
				require.False(t, seen[id])
				seen[id] = true
			}
			require.Len(t, seen, workers)

			sessions, err := store.ListForUser(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, sessions, workers)
		})
	}
}

func TestDualStoreSeesRevocationFromAnotherProcess(t *testing.T) {
	clock := newTestClock()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := SessionStoreConfig{TTL: time.Hour, Clock: clock.Now}

	durableA, err := NewDatabaseSessionStore(db, cfg)
	require.NoError(t, err)
	processA, err := NewDualSessionStore(NewMemorySessionStore(cfg), durableA)
	require.NoError(t, err)

	durableB, err := NewDatabaseSessionStore(db, cfg)
	require.NoError(t, err)
	processB, err := NewDualSessionStore(NewMemorySessionStore(cfg), durableB)
	require.NoError(t, err)

	ctx := context.Background()
	session, err := processA.Create(ctx, NewSession{UserID: "user-1"})
	require.NoError(t, err)

	_, err = processB.Revoke(ctx, session.ID, models.RevocationRevoked)
	require.NoError(t, err)

	_, err = processA.Get(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionRevoked)

	// the local copy now mirrors the revocation
	_, err = processA.memory.Get(ctx, session.ID)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestDualStoreGetFailsClosedWhenDatabaseFails(t *testing.T) {
	clock := newTestClock()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := SessionStoreConfig{TTL: time.Hour, Clock: clock.Now}

	durableA, err := NewDatabaseSessionStore(db, cfg)
	require.NoError(t, err)
	processA, err := NewDualSessionStore(NewMemorySessionStore(cfg), durableA)
	require.NoError(t, err)

	durableB, err := NewDatabaseSessionStore(db, cfg)
	require.NoError(t, err)
	processB, err := NewDualSessionStore(NewMemorySessionStore(cfg), durableB)
	require.NoError(t, err)

	ctx := context.Background()
	session, err := processA.Create(ctx, NewSession{UserID: "user-1"})
	require.NoError(t, err)

	// revoked elsewhere; processA's local copy still looks live
	_, err = processB.Revoke(ctx, session.ID, models.RevocationUserLogout)
	require.NoError(t, err)
	local, err := processA.memory.Get(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, local.IsActive)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	loaded, err := processA.Get(ctx, session.ID)
	require.Error(t, err)
	require.Nil(t, loaded)
	require.False(t, isSessionStateError(err))

	// lookup may still answer from the local copy
	found, err := processA.Lookup(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, session.ID, found.ID)

	// touch stays best effort
	require.NoError(t, processA.Touch(ctx, session.ID))

	// writes that must be durable fail
	_, err = processA.Revoke(ctx, session.ID, models.RevocationRevoked)
	require.Error(t, err)
}

func TestNewDualSessionStoreRequiresBoth(t *testing.T) {
	_, err := NewDualSessionStore(nil, nil)
	require.Error(t, err)
}
