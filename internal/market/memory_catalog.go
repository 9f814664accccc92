package market

import (
	"context"
	"sort"
	"strings"
	"sync"

	xerrors "AgentPay/internal/errors"
)

// MemoryCatalog 以内存方式保存资源目录，主要用于测试与演示部署。
type MemoryCatalog struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

// NewMemoryCatalog 创建目录并写入给定的初始条目。
func NewMemoryCatalog(seed ...Resource) *MemoryCatalog {
	c := &MemoryCatalog{resources: make(map[string]*Resource, len(seed))}
	for i := range seed {
		clone := seed[i]
		c.resources[clone.ID] = &clone
	}
	return c
}

// Get 返回指定资源。
func (c *MemoryCatalog) Get(_ context.Context, id string) (*Resource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resource, ok := c.resources[id]
	if !ok {
		return nil, ErrResourceNotFound
	}
	clone := *resource
	return &clone, nil
}

// Search 按名称做大小写不敏感的子串匹配。
func (c *MemoryCatalog) Search(_ context.Context, keyword string) ([]Summary, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make([]Summary, 0, len(c.resources))
	for _, resource := range c.resources {
		if keyword == "" || strings.Contains(strings.ToLower(resource.Name), keyword) {
			results = append(results, Summary{ID: resource.ID, Name: resource.Name})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// Put 写入或覆盖资源条目。
func (c *MemoryCatalog) Put(_ context.Context, resource *Resource) error {
	if resource == nil || strings.TrimSpace(resource.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "资源 ID 不能为空")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *resource
	c.resources[clone.ID] = &clone
	return nil
}

// Close 对内存目录无需操作。
func (c *MemoryCatalog) Close() error {
	return nil
}

var _ Catalog = (*MemoryCatalog)(nil)
