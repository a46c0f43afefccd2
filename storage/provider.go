package storage

import (
	"context"
	"errors"
	"io"
)

// ErrFileNotFound 存储中不存在该文件
var ErrFileNotFound = errors.New("storage: file not found")

// Provider 存储提供者接口
// 图片字节只经由 Provider 读写，元数据不归它管。
type Provider interface {
	// SaveWithContext 保存文件到存储
	SaveWithContext(ctx context.Context, identifier string, file io.Reader) error

	// GetWithContext 从存储获取文件
	GetWithContext(ctx context.Context, identifier string) (io.ReadCloser, error)

	// DeleteWithContext 从存储删除文件
	DeleteWithContext(ctx context.Context, identifier string) error

	// Exists 检查文件是否存在
	Exists(ctx context.Context, identifier string) (bool, error)

	// Health 检查存储健康状态
	Health(ctx context.Context) error

	// Name 返回存储名称
	Name() string
}
