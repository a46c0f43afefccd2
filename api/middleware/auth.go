package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soramiyu/picture-api/api/common"
	"github.com/soramiyu/picture-api/internal/auth"
)

// ContextCallerKey gin context 中存放请求方身份的 key
const ContextCallerKey = "caller"

// CallerResolver 从 Authorization 头解析身份
type CallerResolver interface {
	ResolveCaller(authorizationHeader string) auth.Caller
}

// ResolveCaller 为每个请求解析身份，解析失败一律按匿名处理
// resolver 为 nil 时（未配置 secret）所有请求都是匿名。
func ResolveCaller(resolver CallerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := auth.Anonymous()
		if resolver != nil {
			caller = resolver.ResolveCaller(c.GetHeader("Authorization"))
		}
		c.Set(ContextCallerKey, caller)
		c.Next()
	}
}

// RequireAuth 把匿名变成 401，是否启用由端点策略决定
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerFrom(c).IsAnonymous() {
			common.RespondError(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerFrom 读取当前请求的身份
func CallerFrom(c *gin.Context) auth.Caller {
	if value, ok := c.Get(ContextCallerKey); ok {
		if caller, ok := value.(auth.Caller); ok {
			return caller
		}
	}
	return auth.Anonymous()
}
