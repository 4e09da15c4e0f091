package contract

import "context"

// Cache: 译文缓存（键值均为字符串）。
// Get 未命中返回 ErrCacheMiss；实现需并发安全。
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}
