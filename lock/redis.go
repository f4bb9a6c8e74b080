package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// Redis is a lock shared by every instance connected to the same Redis.
// The TTL bounds how long a crashed holder can block others.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	prefix string
	logger *zap.Logger

	newToken func() string
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client:   client,
		ttl:      ttl,
		retry:    50 * time.Millisecond,
		prefix:   "lock:",
		logger:   zap.L().Named("lock.redis"),
		newToken: uuid.NewString,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := r.newToken()

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(r.retry):
		}
	}

	return func() {
		// Release with a fresh context: the caller's may already be canceled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := r.client.Eval(rctx, releaseScript, []string{k}, token).Int()
		if err != nil {
			r.logger.Warn("release lock failed", zap.String("key", k), zap.Error(err))
			return
		}
		if n == 0 {
			r.logger.Warn("lock expired before release", zap.String("key", k))
		}
	}, nil
}

var _ Locker = (*Redis)(nil)
