package cart

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tienda-be/internal/product"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

const guestKeyPrefix = "cart:guest:"

// incrementScript adds ARGV[2] to a hash field unless the sum would pass
// ARGV[3]. Returns the new quantity or -1.
var incrementScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local add = tonumber(ARGV[2])
if cur + add > tonumber(ARGV[3]) then
	return -1
end
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], add)
redis.call('EXPIRE', KEYS[1], ARGV[4])
return n
`)

// setScript overwrites an existing field only. Returns 0 when the line is absent.
var setScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// GuestStore keeps anonymous carts in a Redis hash per session:
// field "product_id|color|size", value quantity.
type GuestStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewGuestStore(rdb redis.Cmdable, ttl time.Duration) *GuestStore {
	return &GuestStore{rdb: rdb, ttl: ttl}
}

func guestKey(sessionID string) string { return guestKeyPrefix + sessionID }

func encodeField(k product.VariantKey) string {
	return fmt.Sprintf("%d|%s|%s", k.ProductID, k.ColorCode, k.Size)
}

func decodeField(f string) (product.VariantKey, error) {
	parts := strings.SplitN(f, "|", 3)
	if len(parts) != 3 {
		return product.VariantKey{}, errors.Errorf("malformed cart field %q", f)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return product.VariantKey{}, errors.Wrapf(err, "malformed cart field %q", f)
	}
	return product.VariantKey{ProductID: id, ColorCode: parts[1], Size: parts[2]}, nil
}

func (s *GuestStore) ttlSeconds() int64 { return int64(s.ttl / time.Second) }

func (s *GuestStore) Lines(ctx context.Context, owner Owner) ([]Line, error) {
	m, err := s.rdb.HGetAll(ctx, guestKey(owner.SessionID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "hgetall guest cart")
	}
	return linesFromHash(m)
}

func (s *GuestStore) Increment(ctx context.Context, owner Owner, key product.VariantKey, qty, max int) (int, error) {
	n, err := incrementScript.Run(ctx, s.rdb,
		[]string{guestKey(owner.SessionID)},
		encodeField(key), qty, max, s.ttlSeconds(),
	).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "increment guest line")
	}
	if n < 0 {
		return 0, ErrStockExceeded
	}
	return int(n), nil
}

func (s *GuestStore) SetQuantity(ctx context.Context, owner Owner, key product.VariantKey, qty int) error {
	n, err := setScript.Run(ctx, s.rdb,
		[]string{guestKey(owner.SessionID)},
		encodeField(key), qty, s.ttlSeconds(),
	).Int64()
	if err != nil {
		return errors.Wrap(err, "set guest line")
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (s *GuestStore) Remove(ctx context.Context, owner Owner, key product.VariantKey) error {
	if err := s.rdb.HDel(ctx, guestKey(owner.SessionID), encodeField(key)).Err(); err != nil {
		return errors.Wrap(err, "hdel guest line")
	}
	return nil
}

// Drain reads and deletes the guest cart in one MULTI block, so a session
// is merged at most once even when two logins race.
func (s *GuestStore) Drain(ctx context.Context, sessionID string) ([]Line, error) {
	var all *redis.MapStringStringCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		all = p.HGetAll(ctx, guestKey(sessionID))
		p.Del(ctx, guestKey(sessionID))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "drain guest cart")
	}
	return linesFromHash(all.Val())
}

// Restore puts drained lines back after a failed merge. Quantities are
// added so lines written in the meantime survive.
func (s *GuestStore) Restore(ctx context.Context, sessionID string, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, l := range lines {
			p.HIncrBy(ctx, guestKey(sessionID), encodeField(l.Key), int64(l.Quantity))
		}
		p.Expire(ctx, guestKey(sessionID), s.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "restore guest cart")
	}
	return nil
}

func linesFromHash(m map[string]string) ([]Line, error) {
	lines := make([]Line, 0, len(m))
	for f, v := range m {
		key, err := decodeField(f)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed quantity for %q", f)
		}
		lines = append(lines, Line{Key: key, Quantity: qty})
	}
	sortLines(lines)
	return lines, nil
}
