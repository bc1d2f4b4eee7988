package migrationlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const mysqlLockPrefix = "authcore_migration"

// MySQLLocker uses named user-level locks (GET_LOCK / RELEASE_LOCK).
type MySQLLocker struct {
	db *sql.DB
}

// NewMySQLLocker wraps the connection pool of a MySQL database.
func NewMySQLLocker(db *sql.DB) (*MySQLLocker, error) {
	if db == nil {
		return nil, errors.New("migration lock: mysql pool is required")
	}
	return &MySQLLocker{db: db}, nil
}

func mysqlLockName(id int64) string {
	return fmt.Sprintf("%s_%d", mysqlLockPrefix, id)
}

// TryAcquire runs GET_LOCK with a zero timeout on a dedicated connection.
func (l *MySQLLocker) TryAcquire(ctx context.Context, id int64) (Lease, bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("mysql: reserve connection: %w", err)
	}

	name := mysqlLockName(id)

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&result); err != nil {
		discardConn(conn)
		return nil, false, fmt.Errorf("mysql: get lock: %w", err)
	}
	if !result.Valid {
		discardConn(conn)
		return nil, false, errors.New("mysql: get lock returned NULL")
	}
	if result.Int64 != 1 {
		_ = conn.Close()
		return nil, false, nil
	}

	return &connLease{
		conn: conn,
		unlock: func(ctx context.Context, conn *sql.Conn) (bool, error) {
			var released sql.NullInt64
			if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
				return false, err
			}
			return released.Valid && released.Int64 == 1, nil
		},
	}, true, nil
}
