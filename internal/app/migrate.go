package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/migrationlock"
	"github.com/charlesng35/authcore/pkg/logger"
)

// MigrationLocker picks the lock backend for schema migration. Redis is used
// when configured and a client is available; otherwise the database decides.
func (c MigrationConfig) MigrationLocker(db *gorm.DB, client redis.UniversalClient) (migrationlock.Locker, error) {
	if c.UseRedisLocker() && client != nil {
		return migrationlock.NewRedisLocker(client)
	}
	return migrationlock.ForDatabase(db, nil)
}

// RunMigrations applies the schema under the migration lock. When the lock is
// held elsewhere for the whole timeout, the result depends on SkipOnTimeout:
// skipping returns (false, nil) so startup proceeds against the schema the lock
// holder is applying; otherwise database.ErrMigrationSkipped is returned.
func RunMigrations(ctx context.Context, cfg MigrationConfig, db *gorm.DB, client redis.UniversalClient) (bool, error) {
	locker, err := cfg.MigrationLocker(db, client)
	if err != nil {
		return false, fmt.Errorf("migration: select locker: %w", err)
	}

	manager, err := migrationlock.NewManager(locker, cfg.ManagerConfig())
	if err != nil {
		return false, fmt.Errorf("migration: %w", err)
	}

	err = database.MigrateWithLock(ctx, db, manager)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrMigrationSkipped) && cfg.SkipOnTimeout:
		logger.WithModule("migration").Warn("migration lock not acquired; continuing without migrating",
			zap.Int64("lock_id", manager.LockID()),
		)
		return false, nil
	default:
		return false, err
	}
}
