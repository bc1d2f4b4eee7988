// Package migrationlock provides the fleet-wide mutual exclusion used to make sure
// exactly one process applies schema migrations at a time.
//
// The capability is a named distributed mutex with try-acquire, bounded
// blocking acquire and release. Backends hold the lock for the lifetime of a
// connection (Postgres/MySQL advisory locks) or a heartbeated lease (Redis), so a
// crashed holder never leaves the fleet deadlocked.
package migrationlock

import (
	"context"
	"errors"
)

// DefaultLockID is the advisory lock identifier shared by every migration code path.
const DefaultLockID int64 = 72_616_481_003

var (
	// ErrLockTimeout reports that the lock was not acquired before the wait elapsed.
	// It is not fatal: another process is most likely running the migration.
	ErrLockTimeout = errors.New("migration lock: not acquired before timeout")
	// ErrMigrationExecutionFailed wraps failures of the guarded migration itself.
	ErrMigrationExecutionFailed = errors.New("migration lock: migration execution failed")
	// ErrLockLost signals that the backend no longer recognised the holder on release.
	ErrLockLost = errors.New("migration lock: lock was not held at release")
)

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker attempts a non-blocking acquisition of the lock identified by id.
// A false result with a nil error means another holder currently owns the lock.
type Locker interface {
	TryAcquire(ctx context.Context, id int64) (Lease, bool, error)
}
