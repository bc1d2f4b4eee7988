package migrationlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLocker uses session-level advisory locks.
type PostgresLocker struct {
	db *sql.DB
}

// NewPostgresLocker wraps the connection pool of a Postgres database.
func NewPostgresLocker(db *sql.DB) (*PostgresLocker, error) {
	if db == nil {
		return nil, errors.New("migration lock: postgres pool is required")
	}
	return &PostgresLocker{db: db}, nil
}

// TryAcquire runs pg_try_advisory_lock on a dedicated connection.
func (l *PostgresLocker) TryAcquire(ctx context.Context, id int64) (Lease, bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: reserve connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		discardConn(conn)
		return nil, false, fmt.Errorf("postgres: try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}

	return &connLease{
		conn: conn,
		unlock: func(ctx context.Context, conn *sql.Conn) (bool, error) {
			var released bool
			err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", id).Scan(&released)
			return released, err
		},
	}, true, nil
}
