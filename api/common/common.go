package common

import "github.com/gin-gonic/gin"

// ErrorResponse 请求级错误的统一响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError sends an error response with message.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorResponse{Error: message})
}
