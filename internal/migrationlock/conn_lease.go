package migrationlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
)

// connLease keeps a session-scoped database lock alive by holding the pooled
// connection it was taken on. The connection never returns to the pool while
// the lock is held.
type connLease struct {
	mu       sync.Mutex
	conn     *sql.Conn
	unlock   func(ctx context.Context, conn *sql.Conn) (bool, error)
	released bool
}

func (l *connLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	ok, err := l.unlock(ctx, l.conn)
	if err != nil {
		discardConn(l.conn)
		return fmt.Errorf("unlock: %w", err)
	}
	if !ok {
		discardConn(l.conn)
		return ErrLockLost
	}
	return l.conn.Close()
}

// discardConn drops the connection from the pool instead of recycling it, so
// the server ends the session and any lock still attached to it.
func discardConn(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
