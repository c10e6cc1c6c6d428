package idempotency

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Guard claims a (scope, key) pair once per TTL so that concurrent or
// repeated deliveries of the same state change are applied only once.
type Guard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewGuard(rdb redis.Cmdable, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string {
	return "idem:" + scope + ":" + key
}

// TryLock reports whether the caller won the claim.
func (g *Guard) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, lockKey(scope, key), "1", g.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "idempotency lock")
	}
	return ok, nil
}

// Release drops a claim so a failed attempt can be retried.
func (g *Guard) Release(ctx context.Context, scope, key string) error {
	if err := g.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "idempotency release")
	}
	return nil
}
