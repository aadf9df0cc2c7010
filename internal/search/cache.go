package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/npezzotti/go-reveal/internal/types"
	"github.com/redis/go-redis/v9"
)

const DefaultCachePrefix = "reveal:search"

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]types.Video, error)
	Set(ctx context.Context, key string, videos []types.Video, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// BuildKey normalises the query so that differently spaced or cased
// queries share an entry.
func (c *RedisCache) BuildKey(filter Filter, query string, max int) string {
	return buildKey(c.prefix, filter, query, max)
}

func buildKey(prefix string, filter Filter, query string, max int) string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return fmt.Sprintf("%s:%s:%d:%s", prefix, filter.key(), max, q)
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]types.Video, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var videos []types.Video
	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return videos, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, videos []types.Video, ttl time.Duration) error {
	data, err := json.Marshal(videos)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}
