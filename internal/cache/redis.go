package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Domenick1991/charterbooking/config"
	"github.com/Domenick1991/charterbooking/internal/domain"
)

type RedisCache struct {
	client    *redis.Client
	reportTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, reportTTL time.Duration) *RedisCache {
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), reportTTL)
}

func NewRedisCacheFromClient(client *redis.Client, reportTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, reportTTL: reportTTL}
}

func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error { return c.client.Close() }

// GetReport returns the cached migration progress of kind, or nil on a miss.
func (c *RedisCache) GetReport(ctx context.Context, kind string) (*domain.MigrationProgress, error) {
	data, err := c.client.Get(ctx, reportKey(kind)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var p domain.MigrationProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *RedisCache) SetReport(ctx context.Context, p domain.MigrationProgress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, reportKey(p.Kind), payload, c.reportTTL).Err()
}

// InvalidateReport drops the cached progress of kind after a migration run.
func (c *RedisCache) InvalidateReport(ctx context.Context, kind string) error {
	return c.client.Del(ctx, reportKey(kind)).Err()
}

// Acquire takes a short-lived lock on one entity transition.
func (c *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, lockKey(key), "locked", ttl).Result()
}

func (c *RedisCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, lockKey(key)).Err()
}

func reportKey(kind string) string {
	return "cache:migration:report:" + kind
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:transition:%s", key)
}
