package migrationlock

import (
	"context"
	"sync"
)

// MemoryLocker provides process-local exclusion. It serves single-process
// deployments such as SQLite, where there is no fleet to coordinate.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int64]uint64
	seq  uint64
}

// NewMemoryLocker returns an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int64]uint64)}
}

var processLocker = NewMemoryLocker()

// ProcessLocker returns the locker shared by every code path in this process.
func ProcessLocker() *MemoryLocker {
	return processLocker
}

// TryAcquire never blocks.
func (l *MemoryLocker) TryAcquire(ctx context.Context, id int64) (Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[id]; ok {
		return nil, false, nil
	}
	l.seq++
	l.held[id] = l.seq
	return &memoryLease{locker: l, id: id, token: l.seq}, true, nil
}

type memoryLease struct {
	locker *MemoryLocker
	id     int64
	token  uint64
	once   sync.Once
}

func (m *memoryLease) Release(context.Context) error {
	m.once.Do(func() {
		m.locker.mu.Lock()
		defer m.locker.mu.Unlock()
		if m.locker.held[m.id] == m.token {
			delete(m.locker.held, m.id)
		}
	})
	return nil
}
