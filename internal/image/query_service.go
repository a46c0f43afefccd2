package image

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/soramiyu/picture-api/metastore"
	"github.com/soramiyu/picture-api/storage"
	"github.com/soramiyu/picture-api/utils"
)

// Scope 列表的归属过滤
type Scope struct {
	ownerID string
	owned   bool
}

// ScopeAll 不过滤
func ScopeAll() Scope {
	return Scope{}
}

// ScopeOwner 只返回指定上传者的记录；空 owner（匿名）不匹配任何记录
func ScopeOwner(ownerID string) Scope {
	return Scope{ownerID: ownerID, owned: true}
}

func (s Scope) matches(record *metastore.ImageRecord) bool {
	if !s.owned {
		return true
	}
	return s.ownerID != "" && record.OwnerID == s.ownerID
}

// SrcLinks 客户端渲染用的图片地址
type SrcLinks struct {
	Large string `json:"large"`
}

// ListedImage 列表返回的单条记录，附带派生的展示高度
type ListedImage struct {
	metastore.ImageRecord
	DisplayHeight float64  `json:"displayHeight"`
	Src           SrcLinks `json:"src"`
}

// ListResult 分页结果
type ListResult struct {
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalItems  int            `json:"totalItems"`
	Data        []*ListedImage `json:"data"`
}

// QueryService 只读列表服务，元数据存储是唯一事实来源
type QueryService struct {
	store        *metastore.Store
	provider     storage.Provider
	baseURL      string
	displayWidth int
}

// NewQueryService 创建列表服务
func NewQueryService(store *metastore.Store, provider storage.Provider, baseURL string, displayWidth int) *QueryService {
	return &QueryService{
		store:        store,
		provider:     provider,
		baseURL:      baseURL,
		displayWidth: displayWidth,
	}
}

// List 按 scope 过滤、按创建时间排序并分页
// 底层图片文件缺失的记录直接跳过，不作为错误返回。
func (s *QueryService) List(ctx context.Context, page, limit int, scope Scope) (*ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	records, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to read image records: %w", err)
	}

	filtered := make([]*metastore.ImageRecord, 0, len(records))
	for _, record := range records {
		if !scope.matches(record) {
			continue
		}

		exists, err := s.provider.Exists(ctx, record.StoredFilename)
		if err != nil {
			log.Printf("[list] skipping %s, storage check failed: %v", record.StoredFilename, err)
			continue
		}
		if !exists {
			continue
		}

		filtered = append(filtered, record)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	totalItems := len(filtered)
	totalPages := int(math.Ceil(float64(totalItems) / float64(limit)))

	start := (page - 1) * limit
	if start > totalItems {
		start = totalItems
	}
	end := start + limit
	if end > totalItems {
		end = totalItems
	}

	data := make([]*ListedImage, 0, end-start)
	for _, record := range filtered[start:end] {
		data = append(data, s.Decorate(record))
	}

	return &ListResult{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		Data:        data,
	}, nil
}

// Decorate 附加派生展示字段
func (s *QueryService) Decorate(record *metastore.ImageRecord) *ListedImage {
	return &ListedImage{
		ImageRecord:   *record,
		DisplayHeight: float64(record.Height) * float64(s.displayWidth) / float64(record.Width),
		Src: SrcLinks{
			Large: utils.BuildUploadURL(s.baseURL, record.StoredFilename),
		},
	}
}

// DisplayWidth 返回展示宽度常量
func (s *QueryService) DisplayWidth() int {
	return s.displayWidth
}
