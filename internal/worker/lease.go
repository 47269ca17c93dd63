package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// renewScript extends the lease when the caller already owns it.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

// releaseScript deletes the lease only when the caller owns it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// RedisLease is a Lease kept in a single Redis key.  The key expires on its
// own, so a crashed holder hands over after ttl.
type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

var _ Lease = (*RedisLease)(nil)

// NewRedisLease returns a lease on key with a random owner token.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	if client == nil {
		panic("nil redis client passed to NewRedisLease")
	}
	return &RedisLease{client: client, key: key, token: uuid.NewString(), ttl: ttl}
}

func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	if _, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
