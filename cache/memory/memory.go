package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/soramiyu/picture-api/cache/types"
)

// Memory 基于 Ristretto 的进程内缓存
type Memory struct {
	client *ristretto.Cache
}

// Config Ristretto 配置
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// NewMemory 创建新的内存缓存
func NewMemory(config Config) (*Memory, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Memory{client: client}, nil
}

// Set 设置缓存项，cost 取值为字节数
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.client.SetWithTTL(key, value, int64(len(value)), ttl) {
		// 等待值被实际写入
		m.client.Wait()
	}
	return nil
}

// Get 获取缓存项
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	value, found := m.client.Get(key)
	if !found {
		return nil, types.ErrCacheMiss
	}

	data, ok := value.([]byte)
	if !ok {
		return nil, types.ErrCacheMiss
	}
	return data, nil
}

// Delete 删除缓存项
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.client.Del(key)
	return nil
}

// Close 关闭缓存
func (m *Memory) Close() error {
	m.client.Close()
	return nil
}
