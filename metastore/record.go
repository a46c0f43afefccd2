package metastore

import "time"

// ImageRecord 单张已存储图片的元数据
// 记录在成功上传结束时一次性写入，之后不再变更。
type ImageRecord struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags"`
	Category       string    `json:"category"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	StoredFilename string    `json:"storedFilename"`
	MimeType       string    `json:"mimeType"`
	FileSize       int64     `json:"fileSize"`
	CreatedAt      time.Time `json:"createdAt"`
}
