package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX leases.
type RedisLocker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisClient connects to addr and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisLocker creates a locker whose keys are namespaced by prefix.
func NewRedisLocker(client *redis.Client, prefix string, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, prefix: prefix, logger: logger}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	l.logger.Debug("lease acquired", zap.String("key", fullKey), zap.Duration("ttl", ttl))
	return &redisLease{locker: l, key: fullKey, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", r.key, err)
	}
	if deleted == 0 {
		r.locker.logger.Warn("lease expired before release", zap.String("key", r.key))
	}
	return nil
}
