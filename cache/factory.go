package cache

import (
	"fmt"
	"log"

	"github.com/soramiyu/picture-api/cache/memory"
	"github.com/soramiyu/picture-api/cache/redis"
	"github.com/soramiyu/picture-api/cache/types"
	"github.com/soramiyu/picture-api/config"
)

// NewFromConfig 根据配置创建缓存后端
func NewFromConfig(cfg *config.Config) (types.Cache, error) {
	switch cfg.CacheType {
	case "", "memory":
		c, err := memory.NewMemory(memory.Config{
			NumCounters: 100000,
			MaxCost:     cfg.CacheMaxSizeMB << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		log.Println("[cache] using in-memory cache")
		return c, nil
	case "redis":
		c, err := redis.NewRedis(cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Printf("[cache] using redis cache at %s", cfg.CacheRedisAddr)
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.CacheType)
	}
}
