package types

import (
	"context"
	"errors"
	"time"
)

// Cache 字节缓存接口，用于缓存已存储图片的内容
type Cache interface {
	// Set 设置缓存项
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get 获取缓存项
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete 删除缓存项
	Delete(ctx context.Context, key string) error

	// Close 关闭缓存连接
	Close() error
}

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
