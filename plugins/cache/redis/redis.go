package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"subsync/pkg/contract"
)

// Options: Redis 译文缓存配置。
type Options struct {
	Addr     string `json:"addr"`      // 默认 127.0.0.1:6379
	Password string `json:"password"`  //
	DB       int    `json:"db"`        //
	Prefix   string `json:"prefix"`    // 键前缀，默认 "subsync:tr:"
	TTLHours int    `json:"ttl_hours"` // 过期时间，默认 168（7 天）；< 0 表示不过期
}

// Cache 基于 Redis TTL 实现自动过期。
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// New 按选项创建客户端（由 Cache 负责关闭）。
func New(opts *Options) (*Cache, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	c := NewWithClient(client, o.Prefix, ttlOf(o.TTLHours))
	c.owned = true
	return c, nil
}

// NewWithClient 复用外部客户端（调用方负责关闭）。
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "subsync:tr:"
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func ttlOf(hours int) time.Duration {
	switch {
	case hours < 0:
		return 0
	case hours == 0:
		return 168 * time.Hour
	default:
		return time.Duration(hours) * time.Hour
	}
}

// Get 见 contract.Cache。
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", contract.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Set 见 contract.Cache。
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close 关闭自有客户端。
func (c *Cache) Close() error {
	if c.owned {
		return c.client.Close()
	}
	return nil
}

var _ contract.Cache = (*Cache)(nil)
