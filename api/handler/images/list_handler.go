package images

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/soramiyu/picture-api/api/common"
	"github.com/soramiyu/picture-api/api/middleware"
	imagesvc "github.com/soramiyu/picture-api/internal/image"
)

// ListImages 获取图片列表
// 默认不过滤；?scope=mine 时只返回当前请求方的图片，匿名得到空集。
func (h *Handler) ListImages(c *gin.Context) {
	page, limit := h.parsePagination(c)

	scope := imagesvc.ScopeAll()
	if c.Query("scope") == "mine" {
		scope = imagesvc.ScopeOwner(middleware.CallerFrom(c).Subject())
	}

	result, err := h.queryService.List(c.Request.Context(), page, limit, scope)
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to read images")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListUserImages 获取指定上传者的公开相册
func (h *Handler) ListUserImages(c *gin.Context) {
	page, limit := h.parsePagination(c)

	userID := c.Param("userId")
	result, err := h.queryService.List(c.Request.Context(), page, limit, imagesvc.ScopeOwner(userID))
	if err != nil {
		common.RespondError(c, http.StatusInternalServerError, "Failed to read images")
		return
	}

	c.JSON(http.StatusOK, result)
}

// parsePagination 解析 page/limit 参数并套用默认值与上限
func (h *Handler) parsePagination(c *gin.Context) (page, limit int) {
	page = 1
	if raw := c.Query("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}

	limit = h.defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > h.maxPageLimit {
		limit = h.maxPageLimit
	}

	return page, limit
}
