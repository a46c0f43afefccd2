package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	handlerImages "github.com/soramiyu/picture-api/api/handler/images"
	"github.com/soramiyu/picture-api/api/middleware"
	"github.com/soramiyu/picture-api/cache/types"
	"github.com/soramiyu/picture-api/config"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

var startTime = time.Now()

// ServerDependencies 服务器依赖项
type ServerDependencies struct {
	Config         *config.Config
	Store          *metastore.Store
	StorageFactory *storage.Factory
	Cache          types.Cache
	CallerResolver middleware.CallerResolver
	UploadService  *imagesvc.UploadService
	QueryService   *imagesvc.QueryService
}

// SetupRouter 组装 gin 引擎，返回引擎与限流器清理函数
func SetupRouter(deps *ServerDependencies) (*gin.Engine, func()) {
	cfg := deps.Config

	if config.CommitHash != "n/a" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if config.CommitHash == "n/a" {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())

	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.SetTrustedProxies(nil)

	// 限制上传文件大小
	router.MaxMultipartMemory = int64(cfg.UploadMaxSizeMB) << 20

	requestBodyLimit := int64(cfg.UploadMaxBatchTotalMB) * 2 << 20
	router.Use(middleware.MaxBytesReader(requestBodyLimit))

	apiRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitApiRPS, cfg.RateLimitApiBurst, cfg.RateLimitExpireTime)
	imageRateLimiter := middleware.NewIPRateLimiter(cfg.RateLimitImageRPS, cfg.RateLimitImageBurst, cfg.RateLimitExpireTime)
	cleanup := func() {
		apiRateLimiter.StopCleanup()
		imageRateLimiter.StopCleanup()
	}

	router.Use(middleware.ResolveCaller(deps.CallerResolver))

	registerRoutes(router, deps, apiRateLimiter, imageRateLimiter)

	return router, cleanup
}

// registerRoutes 注册全部路由
func registerRoutes(router *gin.Engine, deps *ServerDependencies, apiRL, imageRL *middleware.IPRateLimiter) {
	cfg := deps.Config

	imageHandler := handlerImages.NewHandler(
		deps.UploadService,
		deps.QueryService,
		deps.Store,
		deps.StorageFactory.GetDefault(),
		deps.Cache,
		cfg,
	)

	healthHandler := NewHealthHandler(deps.Store, deps.StorageFactory, deps.Cache)
	router.GET("/health", healthHandler.Handle)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": config.Version,
			"commit":  config.CommitHash,
		})
	})

	uploadGroup := router.Group("/upload")
	uploadGroup.Use(apiRL.Middleware())
	if cfg.AuthUploadRequired {
		uploadGroup.Use(middleware.RequireAuth())
	}
	{
		uploadGroup.POST("", imageHandler.UploadImages)
	}

	listGroup := router.Group("/")
	listGroup.Use(apiRL.Middleware())
	{
		listGroup.GET("/images", imageHandler.ListImages)
		listGroup.GET("/user/:userId", imageHandler.ListUserImages)
	}

	filesGroup := router.Group("/uploads")
	filesGroup.Use(imageRL.Middleware())
	{
		filesGroup.GET("/:filename", imageHandler.GetUpload)
	}
}

// Run 启动 HTTP 服务并在 ctx 取消时优雅关停
func Run(ctx context.Context, deps *ServerDependencies) error {
	cfg := deps.Config

	router, cleanup := SetupRouter(deps)
	defer cleanup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server exited")
	return nil
}
