package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soramiyu/picture-api/api/core"
	"github.com/soramiyu/picture-api/api/middleware"
	"github.com/soramiyu/picture-api/cache"
	"github.com/soramiyu/picture-api/config"
	"github.com/soramiyu/picture-api/internal/auth"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start API server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func RunServer() {
	config.InitConfig()
	cfg := config.Get()

	for _, dir := range []string{cfg.UploadDir, cfg.MetadataDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	store, err := metastore.NewStore(cfg.MetadataDir)
	if err != nil {
		log.Fatalf("Failed to initialize metadata store: %v", err)
	}

	storageFactory, err := storage.NewFactory(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	imageCache, err := cache.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer imageCache.Close()

	// Token 校验器可选，未配置 secret 时所有请求按匿名处理
	var resolver middleware.CallerResolver
	if cfg.AuthTokenSecret != "" {
		verifier, err := auth.NewVerifier(cfg.AuthTokenSecret, cfg.AuthTokenIssuer)
		if err != nil {
			log.Fatalf("Failed to initialize token verifier: %v", err)
		}
		resolver = verifier
	} else if cfg.AuthUploadRequired {
		log.Fatal("auth_upload_required is set but auth_token_secret is empty")
	}

	provider := storageFactory.GetDefault()
	processor := imagesvc.NewProcessor(cfg.JPEGQuality)
	uploadService := imagesvc.NewUploadService(store, provider, processor, cfg.UploadMaxSizeMB)
	queryService := imagesvc.NewQueryService(store, provider, cfg.PublicBaseURL(), cfg.DisplayWidth)

	deps := &core.ServerDependencies{
		Config:         cfg,
		Store:          store,
		StorageFactory: storageFactory,
		Cache:          imageCache,
		CallerResolver: resolver,
		UploadService:  uploadService,
		QueryService:   queryService,
	}

	// 处理退出 signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Run(ctx, deps); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
