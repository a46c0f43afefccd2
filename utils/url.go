package utils

import "fmt"

// BuildUploadURL 拼接已存储图片的公开访问地址
func BuildUploadURL(baseURL, storedFilename string) string {
	return fmt.Sprintf("%s/uploads/%s", baseURL, storedFilename)
}
