package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/migrationlock"
	"github.com/charlesng35/authcore/internal/models"
)

func writeConfig(t *testing.T, lockID int64) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "data", "authcore.db")
	body := fmt.Sprintf(`server:
  log_level: error
database:
  driver: sqlite
  path: %s
migration:
  lock_id: %d
  timeout: 100ms
  poll_interval: 10ms
`, dbPath, lockID)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir, dbPath
}

func TestRunMigratesAndCreatesUser(t *testing.T) {
	dir, dbPath := writeConfig(t, 310)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-config", filepath.Join(dir, "config.yaml"),
		"-username", "admin",
		"-email", "Admin@Example.com",
		"-password", "Password123!",
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "migrations applied")
	require.Contains(t, out.String(), "created user admin")

	db, err := database.Open(database.Config{Driver: "sqlite", Path: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.True(t, db.Migrator().HasTable(&models.Session{}))

	users, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	require.NoError(t, err)
	user, err := users.FindByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.Equal(t, "admin", user.Username)
}

func TestRunDuplicateUserFails(t *testing.T) {
	dir, _ := writeConfig(t, 311)
	args := []string{"-config", dir, "-username", "admin", "-email", "admin@example.com", "-password", "Password123!"}

	require.NoError(t, run(context.Background(), args, &bytes.Buffer{}))
	err := run(context.Background(), args, &bytes.Buffer{})
	require.ErrorIs(t, err, providers.ErrUserExists)
}

func TestRunFailsWhenLockIsHeld(t *testing.T) {
	dir, _ := writeConfig(t, 312)

	lease, ok, err := migrationlock.ProcessLocker().TryAcquire(context.Background(), 312)
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lease.Release(context.Background()) })

	start := time.Now()
	err = run(context.Background(), []string{"-config", dir}, &bytes.Buffer{})
	require.Error(t, err)
	require.ErrorIs(t, err, database.ErrMigrationSkipped)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestParseFlagsRequiresUserDetails(t *testing.T) {
	_, err := parseFlags([]string{"-username", "admin"}, &bytes.Buffer{})
	require.Error(t, err)

	opts, err := parseFlags([]string{"-timeout", "2s"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, opts.timeout)
}
