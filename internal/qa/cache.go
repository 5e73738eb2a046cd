package qa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"docqa/internal/model"
)

// DefaultKeyPrefix namespaces answer cache keys in Redis.
const DefaultKeyPrefix = "docqa:answer:"

// Cache stores answers per index generation, so any change to the index
// makes earlier entries unreachable.
type Cache interface {
	Get(ctx context.Context, generation uint64, question string) (*model.Answer, bool, error)
	Set(ctx context.Context, generation uint64, question string, answer *model.Answer) error
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: DefaultKeyPrefix}
}

func (c *RedisCache) key(generation uint64, question string) string {
	sum := sha256.Sum256([]byte(strconv.FormatUint(generation, 10) + "|" + question))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, generation uint64, question string) (*model.Answer, bool, error) {
	key := c.key(generation, question)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var a model.Answer
	if err := sonic.Unmarshal(data, &a); err != nil {
		_ = c.client.Del(ctx, key).Err()
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &a, true, nil
}

func (c *RedisCache) Set(ctx context.Context, generation uint64, question string, answer *model.Answer) error {
	data, err := sonic.Marshal(answer)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(generation, question), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
