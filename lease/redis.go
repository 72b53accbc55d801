package lease

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "debindex:lease:"

// releaseScript deletes the lease key only when still held by this token,
// so an expired-and-reacquired lease is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisProvider backs leases with Redis SET NX + TTL entries, shared by
// all workers of a deployment.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider connects a provider to Redis and verifies the
// connection.
func NewRedisProvider(ctx context.Context, addr, password string, db int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "unable to ping redis")
	}

	return &RedisProvider{client: client}, nil
}

// Close releases the underlying connection pool
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

type redisLease struct {
	provider *RedisProvider
	key      string
	token    string
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.provider.client, []string{l.key}, l.token).Err()
}

// TryAcquire implements Provider
func (p *RedisProvider) TryAcquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := uuid.New()
	fullKey := redisKeyPrefix + key

	acquired, err := p.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "unable to acquire lease %s", key)
	}
	if !acquired {
		return nil, false, nil
	}

	return &redisLease{provider: p, key: fullKey, token: token}, true, nil
}
