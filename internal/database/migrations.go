package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/migrationlock"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/logger"
)

// ErrMigrationSkipped reports that another process held the migration lock for
// the whole wait.
var ErrMigrationSkipped = errors.New("database: migration skipped, lock held elsewhere")

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.SessionActivity{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
	)
}

// MigrateWithLock applies AutoMigrate while holding the fleet-wide migration
// lock. It returns ErrMigrationSkipped when the lock could not be obtained in
// time; failures of the migration itself match
// migrationlock.ErrMigrationExecutionFailed.
func MigrateWithLock(ctx context.Context, db *gorm.DB, manager *migrationlock.Manager) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if manager == nil {
		return errors.New("nil migration lock manager")
	}

	log := logger.WithModule("database")

	acquired, err := manager.Run(ctx, func(ctx context.Context) error {
		log.Info("applying schema migrations", zap.String("dialect", db.Dialector.Name()))
		return AutoMigrate(db.WithContext(ctx))
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if !acquired {
		return ErrMigrationSkipped
	}

	log.Info("schema migrations applied")
	return nil
}
