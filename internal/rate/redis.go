package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rl:"

// Fixed-window semantics: the TTL is set only on the first hit of a window. A key that
// somehow lost its TTL gets one again so it cannot pin a window open forever.
const incrScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var incrLua = redis.NewScript(incrScript)

// RedisStore shares windows across processes through Redis counters.
type RedisStore struct {
	redis redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

// Incr implements [Store].
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	res, err := incrLua.Run(ctx, s.redis, []string{redisKeyPrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	return int(res[0]), now.Add(time.Duration(res[1]) * time.Millisecond), nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	if err := s.redis.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Sweep implements [Store]. Redis expires keys itself, so there is nothing to do.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
