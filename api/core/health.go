package core

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soramiyu/picture-api/cache/types"
	"github.com/soramiyu/picture-api/config"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	store          *metastore.Store
	storageFactory *storage.Factory
	cache          types.Cache
}

func NewHealthHandler(store *metastore.Store, storageFactory *storage.Factory, cache types.Cache) *HealthHandler {
	return &HealthHandler{
		store:          store,
		storageFactory: storageFactory,
		cache:          cache,
	}
}

// Handle 汇总各子系统状态，任一异常返回 503
func (h *HealthHandler) Handle(c *gin.Context) {
	health := gin.H{
		"status":  "ok",
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": config.Version,
		"checks": gin.H{
			"metadata": checkMetadataHealth(h.store),
			"cache":    checkCacheHealth(h.cache),
			"storage":  checkStorageHealth(h.storageFactory),
		},
	}

	httpStatus := http.StatusOK
	for _, checkResult := range health["checks"].(gin.H) {
		if result, ok := checkResult.(string); ok && result != "ok" {
			httpStatus = http.StatusServiceUnavailable
			health["status"] = "degraded"
			break
		}
	}

	c.JSON(httpStatus, health)
}

func checkMetadataHealth(store *metastore.Store) string {
	if store == nil {
		return "not initialized"
	}
	if err := store.Health(); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

func checkCacheHealth(cache types.Cache) string {
	if cache == nil {
		return "not initialized"
	}
	return "ok"
}

func checkStorageHealth(storageFactory *storage.Factory) string {
	if storageFactory == nil {
		return "not initialized"
	}

	provider := storageFactory.GetDefault()
	if provider == nil {
		return "error: no default storage provider"
	}

	ctx := context.Background()
	if err := provider.Health(ctx); err != nil {
		return "error: " + err.Error()
	}

	return "ok"
}
