package images

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/soramiyu/picture-api/api/common"
	"github.com/soramiyu/picture-api/api/middleware"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
)

// itemError 批量上传中单个文件的失败条目
type itemError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadImages 处理图片上传（1..N 个文件）
// 单个文件的失败以 {filename,error} 条目回显，不会中断其余文件；
// 只有没有任何文件成功时整个请求才返回 400。
func (h *Handler) UploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "Invalid form data")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		common.RespondError(c, http.StatusBadRequest, "No files uploaded")
		return
	}

	if len(files) > h.maxFiles {
		common.RespondError(c, http.StatusBadRequest, fmt.Sprintf("Maximum %d files allowed per upload", h.maxFiles))
		return
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}
	maxTotalSize := int64(h.maxBatchTotalMB) << 20
	if totalSize > maxTotalSize {
		common.RespondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("Total size of all files (%.2f MB) exceeds maximum allowed (%d MB)", float64(totalSize)/1024/1024, h.maxBatchTotalMB))
		return
	}

	caller := middleware.CallerFrom(c)
	attrs := imagesvc.Attributes{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Tags:        parseTags(c.PostForm("tags")),
		Category:    c.PostForm("category"),
	}

	results := h.uploadService.UploadBatch(c.Request.Context(), caller, files, attrs)

	response := make([]interface{}, 0, len(results))
	successCount := 0
	for _, result := range results {
		if result.Err != nil {
			response = append(response, itemError{
				Filename: result.Filename,
				Error:    itemErrorMessage(result),
			})
			continue
		}
		successCount++
		response = append(response, h.queryService.Decorate(result.Record))
	}

	if successCount == 0 {
		common.RespondError(c, http.StatusBadRequest, "No valid image files uploaded")
		return
	}

	c.JSON(http.StatusOK, response)
}

// itemErrorMessage 将 item 级错误映射为客户端可读信息
func itemErrorMessage(result imagesvc.ItemResult) string {
	switch {
	case errors.Is(result.Err, imagesvc.ErrUnsupportedFormat):
		return fmt.Sprintf("Unsupported file format: %s", result.Filename)
	case errors.Is(result.Err, imagesvc.ErrInvalidImage):
		return fmt.Sprintf("Invalid image file: %s", result.Filename)
	case errors.Is(result.Err, imagesvc.ErrFileTooLarge):
		return fmt.Sprintf("File too large: %s", result.Filename)
	default:
		return fmt.Sprintf("Failed to process file: %s", result.Filename)
	}
}

// parseTags 逗号分隔的标签列表
func parseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
