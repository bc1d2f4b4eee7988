package app

import (
	"strings"

	"github.com/charlesng35/authcore/internal/migrationlock"
)

// ManagerConfig converts MigrationConfig into migration lock manager parameters.
func (c MigrationConfig) ManagerConfig() migrationlock.Config {
	lockID := c.LockID
	if lockID == 0 {
		lockID = migrationlock.DefaultLockID
	}

	return migrationlock.Config{
		LockID:       lockID,
		Timeout:      c.Timeout,
		PollInterval: c.PollInterval,
	}
}

// UseRedisLocker reports whether the migration lock should be held in Redis
// instead of the database.
func (c MigrationConfig) UseRedisLocker() bool {
	return strings.EqualFold(strings.TrimSpace(c.Locker), "redis")
}
