package market

import (
	"context"

	xerrors "AgentPay/internal/errors"
)

// Resource 表示受保护的付费资源条目。
type Resource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// Price 为访问该资源需要支付的整数价格，0 表示免费。
	Price int64 `json:"price,omitempty"`
}

// Summary 是搜索接口返回的免费摘要视图，不含正文与价格之外的细节。
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ErrResourceNotFound 表示目录中不存在指定资源。
var ErrResourceNotFound = xerrors.New(xerrors.CodeNotFound, "resource not found")

// Catalog 抽象了资源目录的存储接口。
type Catalog interface {
	Get(ctx context.Context, id string) (*Resource, error)
	// Search 按关键字对资源名做大小写不敏感的子串匹配，免费调用。
	Search(ctx context.Context, keyword string) ([]Summary, error)
	Put(ctx context.Context, resource *Resource) error
	Close() error
}

// DefaultResources 返回演示目录，与参考实现保持一致：
// 一个定价 10 的付费资源和一个免费资源。
func DefaultResources() []Resource {
	return []Resource{
		{ID: "1", Name: "ACME Corp", Description: "A company", Price: 10},
		{ID: "2", Name: "Globex Ltd", Description: "A free sample listing", Price: 0},
	}
}
