package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/notify/internal/model"
)

const (
	keyPrefix = "message:unread:type:"
	genPrefix = "message:unread:gen:"

	// Generation counters outlive snapshots by far, so an expired counter
	// cannot alias a reader's pending Set.
	generationTTL = 24 * time.Hour
)

// setIfCurrent replaces the snapshot at KEYS[1] only when the generation at
// KEYS[2] (missing = 0) equals ARGV[1]. ARGV[2] is the TTL in seconds and
// the rest are HSET field/value pairs. Returns 1 if written.
const setIfCurrent = `
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`

// presentField marks a snapshot as cached even when every count is zero,
// since Redis drops empty hashes.
const presentField = "_"

// RedisCache stores snapshots as Redis hashes keyed by receiver, one field
// per kind code.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	closer func() error
	logger *slog.Logger
}

// NewRedisCache connects to the Redis server at addr.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	c := NewRedisCacheWithClient(rdb, ttl, logger)
	c.closer = rdb.Close
	return c, nil
}

// NewRedisCacheWithClient wraps an existing client. The caller owns its lifecycle.
func NewRedisCacheWithClient(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(receiverID int64) string {
	return keyPrefix + strconv.FormatInt(receiverID, 10)
}

func genKey(receiverID int64) string {
	return genPrefix + strconv.FormatInt(receiverID, 10)
}

func (c *RedisCache) Get(ctx context.Context, receiverID int64) (model.UnreadByType, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, cacheKey(receiverID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read unread cache: %w", err)
	}
	if _, ok := fields[presentField]; !ok {
		return nil, false, nil
	}

	counts := make(model.UnreadByType, len(fields)-1)
	for field, val := range fields {
		if field == presentField {
			continue
		}
		code, err := strconv.Atoi(field)
		if err != nil || !model.Kind(code).IsValid() {
			c.logger.Warn("cache: ignoring unknown field", "key", cacheKey(receiverID), "field", field)
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, false, fmt.Errorf("decode unread count %q: %w", val, err)
		}
		counts[model.Kind(code)] = n
	}
	return counts, true, nil
}

func (c *RedisCache) Generation(ctx context.Context, receiverID int64) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(receiverID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read unread cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) Set(ctx context.Context, receiverID, gen int64, counts model.UnreadByType) error {
	args := append([]any{strconv.FormatInt(gen, 10), ttlSeconds(c.ttl)}, hashValues(counts)...)
	written, err := c.rdb.Eval(ctx, setIfCurrent, []string{cacheKey(receiverID), genKey(receiverID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("write unread cache: %w", err)
	}
	if written == 0 {
		c.logger.Debug("cache: snapshot superseded by invalidation", "receiver_id", receiverID, "generation", gen)
	}
	return nil
}

// Invalidate drops the snapshot and bumps the generation in one transaction.
func (c *RedisCache) Invalidate(ctx context.Context, receiverID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(receiverID))
		pipe.Expire(ctx, genKey(receiverID), generationTTL)
		pipe.Del(ctx, cacheKey(receiverID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate unread cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// hashValues flattens counts into HSET field/value pairs in kind order.
func hashValues(counts model.UnreadByType) []any {
	kinds := make([]int, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, int(k))
	}
	sort.Ints(kinds)

	values := []any{presentField, "1"}
	for _, k := range kinds {
		values = append(values, strconv.Itoa(k), strconv.Itoa(counts[model.Kind(k)]))
	}
	return values
}

func ttlSeconds(d time.Duration) int64 {
	if secs := int64(d / time.Second); secs > 0 {
		return secs
	}
	return 1
}
