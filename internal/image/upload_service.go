package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
	"github.com/soramiyu/picture-api/utils"
	"github.com/soramiyu/picture-api/utils/pool"

	"github.com/soramiyu/picture-api/internal/auth"
)

// ErrFileTooLarge 单个文件超出大小限制
var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

// Attributes 上传时附带的描述字段，缺省值在提交前补齐
type Attributes struct {
	Title       string
	Description string
	Tags        []string
	Category    string
}

// ItemResult 批量上传中单个文件的结果
type ItemResult struct {
	Filename string
	Record   *metastore.ImageRecord
	Err      error
}

// UploadService 上传流水线：校验 -> 规范化 -> 落存储 -> 提交元数据
type UploadService struct {
	store       *metastore.Store
	provider    storage.Provider
	processor   *Processor
	maxFileSize int64
}

// NewUploadService 创建上传服务
func NewUploadService(store *metastore.Store, provider storage.Provider, processor *Processor, maxFileSizeMB int) *UploadService {
	return &UploadService{
		store:       store,
		provider:    provider,
		processor:   processor,
		maxFileSize: int64(maxFileSizeMB) << 20,
	}
}

// UploadBatch 处理一批文件，单个文件失败不影响其余文件
// 所有文件处理完毕（join）后才返回聚合结果。
func (s *UploadService) UploadBatch(
	ctx context.Context,
	caller auth.Caller,
	files []*multipart.FileHeader,
	attrs Attributes,
) []ItemResult {
	results := make([]ItemResult, len(files))

	g, ctx := errgroup.WithContext(ctx)

	for i, fileHeader := range files {
		i, fileHeader := i, fileHeader
		g.Go(func() error {
			record, err := s.processOne(ctx, caller, fileHeader, attrs)
			results[i] = ItemResult{
				Filename: fileHeader.Filename,
				Record:   record,
				Err:      err,
			}
			if err != nil {
				log.Printf("[upload] rejected %s: %v", utils.SanitizeLogFilename(fileHeader.Filename), err)
			}
			return nil
		})
	}

	// item 级错误记录在结果里，不会让 Wait 失败
	_ = g.Wait()

	return results
}

// processOne 处理单个文件并提交元数据
func (s *UploadService) processOne(
	ctx context.Context,
	caller auth.Caller,
	fileHeader *multipart.FileHeader,
	attrs Attributes,
) (*metastore.ImageRecord, error) {
	if s.maxFileSize > 0 && fileHeader.Size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var raw bytes.Buffer
	raw.Grow(int(fileHeader.Size))

	bufPtr := pool.SharedBufferPool.Get().(*[]byte)
	_, err = io.CopyBuffer(&raw, file, *bufPtr)
	pool.SharedBufferPool.Put(bufPtr)
	if err != nil {
		return nil, fmt.Errorf("failed to read file stream: %w", err)
	}

	processed, err := s.processor.Process(raw.Bytes(), fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	// UUID 命名保证并发上传下的唯一性
	id := uuid.NewString()
	storedFilename := id + processed.Ext

	if err := s.provider.SaveWithContext(ctx, storedFilename, bytes.NewReader(processed.Data)); err != nil {
		return nil, fmt.Errorf("failed to save uploaded file: %w", err)
	}

	record := &metastore.ImageRecord{
		ID:             id,
		OwnerID:        caller.Subject(),
		Title:          attrs.Title,
		Description:    attrs.Description,
		Tags:           attrs.Tags,
		Category:       attrs.Category,
		Width:          processed.Width,
		Height:         processed.Height,
		StoredFilename: storedFilename,
		MimeType:       processed.MimeType,
		FileSize:       int64(len(processed.Data)),
		CreatedAt:      time.Now().UTC(),
	}
	applyDefaults(record)

	if err := s.store.Save(record); err != nil {
		// 元数据写入失败时回收已落盘的图片
		if delErr := s.provider.DeleteWithContext(ctx, storedFilename); delErr != nil {
			log.Printf("[upload] failed to roll back artifact %s: %v", storedFilename, delErr)
		}
		return nil, fmt.Errorf("failed to save image metadata: %w", err)
	}

	return record, nil
}

// applyDefaults 补齐缺省描述字段
func applyDefaults(record *metastore.ImageRecord) {
	if record.Title == "" {
		record.Title = "Untitled"
	}
	if record.Description == "" {
		record.Description = "No description"
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
}
