package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	// ErrUnsupportedFormat 声明或嗅探出的类型不在支持范围内
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrInvalidImage 图片数据损坏或无法提取尺寸
	ErrInvalidImage = errors.New("invalid image data")
)

// allowedMimeTypes 支持的图片类型
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// Processor 校验并规范化上传的图片字节
// jpeg/png 以固定质量重编码为 JPEG 控制体积，gif 原样保留以保住动图。
type Processor struct {
	jpegQuality int
}

// NewProcessor 创建图片处理器
func NewProcessor(jpegQuality int) *Processor {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 80
	}
	return &Processor{jpegQuality: jpegQuality}
}

// Processed 处理完成的图片
type Processed struct {
	Data     []byte
	Ext      string
	MimeType string
	Width    int
	Height   int
}

// Process 纯函数：原始字节 -> 规范化字节 + 尺寸
// 不做任何磁盘写入，持久化由上传流水线负责。
func (p *Processor) Process(raw []byte, declaredMimeType string) (*Processed, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	if declared := normalizeMimeType(declaredMimeType); declared != "" && !allowedMimeTypes[declared] {
		return nil, fmt.Errorf("%w: declared type %s", ErrUnsupportedFormat, declared)
	}

	sniffLen := len(raw)
	if sniffLen > 512 {
		sniffLen = 512
	}
	sniffed := http.DetectContentType(raw[:sniffLen])
	if !allowedMimeTypes[sniffed] {
		return nil, fmt.Errorf("%w: detected type %s", ErrUnsupportedFormat, sniffed)
	}

	var (
		data     []byte
		ext      string
		mimeType string
	)

	switch sniffed {
	case "image/gif":
		data = raw
		ext = ".gif"
		mimeType = "image/gif"
	default:
		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality)); err != nil {
			return nil, fmt.Errorf("failed to re-encode image: %w", err)
		}
		data = buf.Bytes()
		ext = ".jpg"
		mimeType = "image/jpeg"
	}

	// 尺寸取自最终产物而非原始字节
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}

	return &Processed{
		Data:     data,
		Ext:      ext,
		MimeType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// normalizeMimeType 去掉参数并统一小写，如 "image/JPEG; charset=x" -> "image/jpeg"
func normalizeMimeType(mimeType string) string {
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "application/octet-stream" {
		// 浏览器兜底类型交给内容嗅探判断
		return ""
	}
	return mimeType
}
