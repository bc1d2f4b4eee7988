package migrationlock

import (
	"fmt"

	"gorm.io/gorm"
)

// ForDatabase selects the locker matching the database dialect. Dialects without
// a server-side lock use fallback when supplied and the process-local locker
// otherwise.
func ForDatabase(db *gorm.DB, fallback Locker) (Locker, error) {
	if db == nil {
		return nil, fmt.Errorf("migration lock: database handle is required")
	}

	switch name := db.Dialector.Name(); name {
	case "postgres":
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("migration lock: access sql db: %w", err)
		}
		return NewPostgresLocker(sqlDB)
	case "mysql":
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("migration lock: access sql db: %w", err)
		}
		return NewMySQLLocker(sqlDB)
	default:
		if fallback != nil {
			return fallback, nil
		}
		return ProcessLocker(), nil
	}
}
