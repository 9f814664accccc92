package task

import (
	"context"
)

// Store 定义任务记录的持久化接口。
// 所有实现都必须保证 Claim 的互斥语义:同一任务最多只有一次
// 认领能从 pending 过渡到 running,从而做到执行幂等。
type Store interface {
	// Create 持久化一条新的任务记录。
	Create(ctx context.Context, t *Task) error
	// Get 返回任务记录的副本。
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 将 pending 任务置为 running 并递增 Attempts。
	// 任务处于终态时返回 ErrTaskFinished,正在运行时返回 ErrTaskConflict。
	Claim(ctx context.Context, id string) (*Task, error)
	// MarkCompleted 记录任务产出的报告并置为 completed。
	MarkCompleted(ctx context.Context, id string, report string) error
	// MarkFailed 记录失败原因并置为 failed。
	MarkFailed(ctx context.Context, id string, code string, reason string) error
	// List 按过滤条件返回任务记录。
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	// Stats 返回各状态的任务数量。
	Stats(ctx context.Context) (*Stats, error)
	// Close 释放存储持有的资源。
	Close() error
}

// Stats 汇总各状态的任务数量。
type Stats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
