package stripebridge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OrderLocker serializes work on a single order. Two concurrent return
// requests for the same order (double-clicked return link, webhook racing
// the redirect) must not both run capture and finalize.
type OrderLocker interface {
	Lock(ctx context.Context, orderID int64) (release func(), err error)
}

// RedisOrderLock implements OrderLocker with a SETNX lease per order id.
// The lease carries an owner token so an expired holder cannot release a
// lock that has since been re-acquired by someone else.
type RedisOrderLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisOrderLock creates a lock manager. The TTL bounds how long a
// crashed request can keep an order blocked.
func NewRedisOrderLock(rdb *redis.Client, ttl time.Duration) *RedisOrderLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisOrderLock{rdb: rdb, ttl: ttl}
}

// releaseScript deletes the lease only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisOrderLock) Lock(ctx context.Context, orderID int64) (func(), error) {
	key := fmt.Sprintf("stripebridge:orderlock:%d", orderID)
	owner := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, NewGatewayError(ErrPersistenceFailed, "acquire order lock", orderID, err)
	}
	if !ok {
		return nil, NewGatewayError(ErrOrderLocked, "order is being processed by another request", orderID, nil)
	}

	release := func() {
		// Release failures only shorten to the TTL, nothing to surface.
		_, _ = releaseScript.Run(context.Background(), l.rdb, []string{key}, owner).Result()
	}

	return release, nil
}

// NoopLocker satisfies OrderLocker without providing exclusion. Only for
// single-writer deployments and tests.
type NoopLocker struct{}

func (NoopLocker) Lock(ctx context.Context, orderID int64) (func(), error) {
	return func() {}, nil
}
