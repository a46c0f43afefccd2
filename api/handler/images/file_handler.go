package images

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/soramiyu/picture-api/api/common"
	"github.com/soramiyu/picture-api/cache/types"
	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
)

// 超过该大小的文件不进缓存
const maxCacheableSize = 10 << 20

// GetUpload 返回已存储图片的原始字节
func (h *Handler) GetUpload(c *gin.Context) {
	filename := c.Param("filename")
	if !storage.IsValidIdentifier(filename) {
		common.RespondError(c, http.StatusNotFound, "File not found")
		return
	}

	contentType := h.contentTypeFor(filename)
	cacheKey := "img:" + filename

	if h.cache != nil {
		if data, err := h.cache.Get(c.Request.Context(), cacheKey); err == nil {
			c.Data(http.StatusOK, contentType, data)
			return
		} else if !types.IsCacheMiss(err) {
			log.Printf("[files] cache lookup failed for %s: %v", filename, err)
		}
	}

	reader, err := h.provider.GetWithContext(c.Request.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			common.RespondError(c, http.StatusNotFound, "File not found")
			return
		}
		common.RespondError(c, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to read file")
		return
	}

	if h.cache != nil && len(data) <= maxCacheableSize {
		if err := h.cache.Set(c.Request.Context(), cacheKey, data, h.cacheTTL); err != nil {
			log.Printf("[files] failed to cache %s: %v", filename, err)
		}
	}

	c.Data(http.StatusOK, contentType, data)
}

// contentTypeFor 优先取元数据中的类型，回退到扩展名推断
func (h *Handler) contentTypeFor(filename string) string {
	if record, err := h.store.Get(filename); err == nil && record.MimeType != "" {
		return record.MimeType
	} else if err != nil && !errors.Is(err, metastore.ErrRecordNotFound) {
		log.Printf("[files] metadata lookup failed for %s: %v", filename, err)
	}

	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
