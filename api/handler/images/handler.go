package images

import (
	"time"

	"github.com/soramiyu/picture-api/cache/types"
	"github.com/soramiyu/picture-api/config"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

// Handler 图片相关的 HTTP 处理器
type Handler struct {
	uploadService *imagesvc.UploadService
	queryService  *imagesvc.QueryService
	store         *metastore.Store
	provider      storage.Provider
	cache         types.Cache
	cacheTTL      time.Duration

	maxFiles         int
	maxBatchTotalMB  int
	defaultPageLimit int
	maxPageLimit     int
}

// NewHandler 创建处理器（依赖注入）
func NewHandler(
	uploadService *imagesvc.UploadService,
	queryService *imagesvc.QueryService,
	store *metastore.Store,
	provider storage.Provider,
	imageCache types.Cache,
	cfg *config.Config,
) *Handler {
	return &Handler{
		uploadService:    uploadService,
		queryService:     queryService,
		store:            store,
		provider:         provider,
		cache:            imageCache,
		cacheTTL:         cfg.CacheImageTTL,
		maxFiles:         cfg.UploadMaxFiles,
		maxBatchTotalMB:  cfg.UploadMaxBatchTotalMB,
		defaultPageLimit: cfg.DefaultPageLimit,
		maxPageLimit:     cfg.MaxPageLimit,
	}
}
