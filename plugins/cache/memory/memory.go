package memory

import (
	"context"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"subsync/pkg/contract"
)

// Options: 进程内缓存配置。
type Options struct {
	// MaxEntries: 条目上限，超过后淘汰最久未使用的条目；0 表示不限制。
	MaxEntries int `json:"max_entries"`
}

// Cache 为单次运行（会话）内的译文缓存。
type Cache struct {
	c *lru.Cache[string, string]
}

func New(opts *Options) *Cache {
	size := math.MaxInt
	if opts != nil && opts.MaxEntries > 0 {
		size = opts.MaxEntries
	}
	// size > 0 时不会出错
	c, _ := lru.New[string, string](size)
	return &Cache{c: c}
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.c.Get(key)
	if !ok {
		return "", contract.ErrCacheMiss
	}
	return v, nil
}

func (c *Cache) Set(_ context.Context, key, value string) error {
	c.c.Add(key, value)
	return nil
}

// Len 返回当前条目数。
func (c *Cache) Len() int { return c.c.Len() }

func (c *Cache) Close() error {
	c.c.Purge()
	return nil
}
