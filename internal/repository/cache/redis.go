package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rastersource:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an entry is retained, stale or not.
	TTL time.Duration
}

var _ TileCache = (*RedisCache)(nil)

func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func (c *RedisCache) keyFor(k TileCacheKey) string {
	return redisKeyPrefix + k.String()
}

func (c *RedisCache) sourceIndexKey(scope, sourceID string) string {
	return fmt.Sprintf("%ssource:%s:%s", redisKeyPrefix, scope, sourceID)
}

func (c *RedisCache) Get(ctx context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.keyFor(k)).Result()
	if err != nil {
		return TileCacheValue{}, false, fmt.Errorf("redis get error: %w", err)
	}
	if len(fields) == 0 {
		return TileCacheValue{}, false, nil
	}

	fetchedAt, err := strconv.ParseInt(fields["fetched_at"], 10, 64)
	if err != nil {
		return TileCacheValue{}, false, fmt.Errorf("redis entry %s has bad fetched_at: %w", k, err)
	}

	v := TileCacheValue{
		Data:      []byte(fields["data"]),
		FetchedAt: time.UnixMilli(fetchedAt),
	}
	if raw := fields["expires_at"]; raw != "" && raw != "0" {
		expiresAt, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return TileCacheValue{}, false, fmt.Errorf("redis entry %s has bad expires_at: %w", k, err)
		}
		v.ExpiresAt = time.UnixMilli(expiresAt)
	}

	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, k TileCacheKey, v TileCacheValue) error {
	key := c.keyFor(k)

	var expiresAt int64
	if !v.ExpiresAt.IsZero() {
		expiresAt = v.ExpiresAt.UnixMilli()
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"data", v.Data,
			"fetched_at", v.FetchedAt.UnixMilli(),
			"expires_at", expiresAt,
		)
		pipe.Expire(ctx, key, c.ttl)
		if k.Kind == KindTile {
			idx := c.sourceIndexKey(k.Scope, k.SourceID)
			pipe.SAdd(ctx, idx, key)
			pipe.Expire(ctx, idx, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}

	return nil
}

func (c *RedisCache) DeleteSource(ctx context.Context, scope, sourceID string) error {
	idx := c.sourceIndexKey(scope, sourceID)

	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete error: %w", err)
	}

	keys = append(keys, idx)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
