package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

var (
	globalConfig Config
	once         sync.Once
)

// Config 扁平化配置结构体
type Config struct {
	// 服务器配置
	ServerHost         string        `mapstructure:"server_host"`
	ServerPort         int           `mapstructure:"server_port"`
	BaseURL            string        `mapstructure:"base_url"`
	ServerReadTimeout  time.Duration `mapstructure:"server_read_timeout"`
	ServerWriteTimeout time.Duration `mapstructure:"server_write_timeout"`
	ServerIdleTimeout  time.Duration `mapstructure:"server_idle_timeout"`

	// CORS 配置
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	// 目录配置
	UploadDir   string `mapstructure:"upload_dir"`
	MetadataDir string `mapstructure:"metadata_dir"`
	TempDir     string `mapstructure:"temp_dir"`

	// 上传配置
	UploadMaxFiles        int `mapstructure:"upload_max_files"`
	UploadMaxSizeMB       int `mapstructure:"upload_max_size_mb"`
	UploadMaxBatchTotalMB int `mapstructure:"upload_max_batch_total_mb"`
	JPEGQuality           int `mapstructure:"jpeg_quality"`

	// 列表配置
	DisplayWidth     int `mapstructure:"display_width"`
	DefaultPageLimit int `mapstructure:"default_page_limit"`
	MaxPageLimit     int `mapstructure:"max_page_limit"`

	// 认证配置
	AuthUploadRequired bool   `mapstructure:"auth_upload_required"`
	AuthTokenSecret    string `mapstructure:"auth_token_secret"`
	AuthTokenIssuer    string `mapstructure:"auth_token_issuer"`

	// 存储配置
	StorageType string `mapstructure:"storage_type"`

	MinioEndpoint        string `mapstructure:"minio_endpoint"`
	MinioAccessKeyID     string `mapstructure:"minio_access_key_id"`
	MinioSecretAccessKey string `mapstructure:"minio_secret_access_key"`
	MinioBucket          string `mapstructure:"minio_bucket"`
	MinioUseSSL          bool   `mapstructure:"minio_use_ssl"`

	WebDAVURL      string `mapstructure:"webdav_url"`
	WebDAVUsername string `mapstructure:"webdav_username"`
	WebDAVPassword string `mapstructure:"webdav_password"`
	WebDAVRootPath string `mapstructure:"webdav_root_path"`

	// 缓存提供者配置
	CacheType          string        `mapstructure:"cache_type"`
	CacheRedisAddr     string        `mapstructure:"cache_redis_addr"`
	CacheRedisPassword string        `mapstructure:"cache_redis_password"`
	CacheRedisDB       int           `mapstructure:"cache_redis_db"`
	CacheMaxSizeMB     int64         `mapstructure:"cache_max_size_mb"`
	CacheImageTTL      time.Duration `mapstructure:"cache_image_ttl"`

	// 限流配置
	RateLimitApiRPS     float64       `mapstructure:"rate_limit_api_rps"`
	RateLimitApiBurst   int           `mapstructure:"rate_limit_api_burst"`
	RateLimitImageRPS   float64       `mapstructure:"rate_limit_image_rps"`
	RateLimitImageBurst int           `mapstructure:"rate_limit_image_burst"`
	RateLimitExpireTime time.Duration `mapstructure:"rate_limit_expire_time"`
}

// InitConfig Initialize configuration
func InitConfig() {
	once.Do(func() {
		loadConfig()
	})
}

func Get() *Config {
	return &globalConfig
}

// PublicBaseURL 返回对外可见的基础 URL
func (c *Config) PublicBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("http://%s:%d", c.ServerHost, c.ServerPort)
}

// loadConfig Core configuration loading
func loadConfig() {
	setDefaults()

	configFile := viper.GetString("config_file_path")
	if configFile == "" {
		configFile = ".env"
	}
	viper.SetConfigFile(configFile)
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintln(os.Stderr, "Info: .env file not found, using defaults and environment variables")
	} else {
		fmt.Fprintln(os.Stderr, "Info: Loaded configuration from .env file")
	}

	viper.AutomaticEnv()
	for _, key := range viper.AllKeys() {
		viper.BindEnv(key)
	}

	if err := viper.Unmarshal(&globalConfig, viper.DecodeHook(decodeHook())); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: Unable to unmarshal config, %v\n", err)
		os.Exit(1)
	}
}

// decodeHook 逗号分隔字符串解码为 []string（如 cors_allowed_origins）
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
			if f.Kind() != reflect.String || t != reflect.TypeOf([]string{}) {
				return data, nil
			}
			raw := strings.TrimSpace(data.(string))
			if raw == "" {
				return []string{}, nil
			}
			parts := strings.Split(raw, ",")
			origins := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					origins = append(origins, p)
				}
			}
			return origins, nil
		},
	)
}

// setDefaults 设置默认值
func setDefaults() {
	// 服务器配置默认值
	viper.SetDefault("server_host", "127.0.0.1")
	viper.SetDefault("server_port", 5000)
	viper.SetDefault("base_url", "")
	viper.SetDefault("server_read_timeout", "15s")
	viper.SetDefault("server_write_timeout", "30s")
	viper.SetDefault("server_idle_timeout", "120s")

	viper.SetDefault("cors_allowed_origins", "")

	// 目录配置默认值
	viper.SetDefault("upload_dir", "./data/uploads")
	viper.SetDefault("metadata_dir", "./data/metadata")
	viper.SetDefault("temp_dir", "./data/temp")

	// 上传配置默认值
	viper.SetDefault("upload_max_files", 10)
	viper.SetDefault("upload_max_size_mb", 20)
	viper.SetDefault("upload_max_batch_total_mb", 100)
	viper.SetDefault("jpeg_quality", 80)

	// 列表配置默认值
	viper.SetDefault("display_width", 900)
	viper.SetDefault("default_page_limit", 15)
	viper.SetDefault("max_page_limit", 100)

	// 认证配置默认值
	viper.SetDefault("auth_upload_required", false)
	viper.SetDefault("auth_token_secret", "")
	viper.SetDefault("auth_token_issuer", "")

	// 存储配置默认值
	viper.SetDefault("storage_type", "local")
	viper.SetDefault("minio_endpoint", "")
	viper.SetDefault("minio_access_key_id", "")
	viper.SetDefault("minio_secret_access_key", "")
	viper.SetDefault("minio_bucket", "picture-api")
	viper.SetDefault("minio_use_ssl", true)
	viper.SetDefault("webdav_url", "")
	viper.SetDefault("webdav_username", "")
	viper.SetDefault("webdav_password", "")
	viper.SetDefault("webdav_root_path", "")

	// 缓存提供者配置默认值
	viper.SetDefault("cache_type", "memory")
	viper.SetDefault("cache_redis_addr", "localhost:6379")
	viper.SetDefault("cache_redis_password", "")
	viper.SetDefault("cache_redis_db", 0)
	viper.SetDefault("cache_max_size_mb", 256)
	viper.SetDefault("cache_image_ttl", "1h")

	// 限流配置默认值
	viper.SetDefault("rate_limit_api_rps", 30.0)
	viper.SetDefault("rate_limit_api_burst", 60)
	viper.SetDefault("rate_limit_image_rps", 100.0)
	viper.SetDefault("rate_limit_image_burst", 200)
	viper.SetDefault("rate_limit_expire_time", "10m")
}
