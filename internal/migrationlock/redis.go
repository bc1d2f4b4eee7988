package migrationlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/logger"
)

const (
	defaultRedisLeaseTTL = 30 * time.Second
	defaultRedisPrefix   = "authcore:migration_lock"
)

var (
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisOption customises a RedisLocker.
type RedisOption func(*RedisLocker)

// WithLeaseTTL sets how long a lease survives without a heartbeat.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithKeyPrefix overrides the Redis key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// RedisLocker implements the lock as a lease key guarded by a random token.
// A heartbeat extends the lease while it is held; a crashed holder loses the
// lock once the TTL elapses.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedisLocker constructs a Redis-backed locker.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("migration lock: redis client is required")
	}
	l := &RedisLocker{
		client: client,
		ttl:    defaultRedisLeaseTTL,
		prefix: defaultRedisPrefix,
		log:    logger.WithModule("migrationlock.redis"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *RedisLocker) key(id int64) string {
	return fmt.Sprintf("%s:%d", l.prefix, id)
}

// TryAcquire sets the lease key only if it does not exist.
func (l *RedisLocker) TryAcquire(ctx context.Context, id int64) (Lease, bool, error) {
	token := uuid.NewString()
	key := l.key(id)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: set lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	lease := &redisLease{
		locker: l,
		key:    key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.heartbeat()
	return lease, true, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (r *redisLease) heartbeat() {
	defer close(r.done)

	interval := r.locker.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			res, err := extendScript.Run(ctx, r.locker.client, []string{r.key}, r.token, r.locker.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				r.locker.log.Warn("extend migration lease", zap.String("key", r.key), zap.Error(err))
				continue
			}
			if res == 0 {
				r.locker.log.Error("migration lease lost", zap.String("key", r.key))
				return
			}
		}
	}
}

func (r *redisLease) Release(ctx context.Context) error {
	r.once.Do(func() {
		close(r.stop)
		<-r.done

		res, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Int64()
		switch {
		case err != nil:
			r.err = fmt.Errorf("redis: release lease: %w", err)
		case res == 0:
			r.err = ErrLockLost
		}
	})
	return r.err
}
