package task

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	xerrors "AgentPay/internal/errors"
)

type fakeExecutor struct {
	executed atomic.Int32
	latency  time.Duration
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, t *Task) (string, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.executed.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "## " + t.Theme + "\n\nok", nil
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 5 * time.Millisecond}

	service := NewService(store, queue)
	processor := NewProcessor(executor, store, queue, WithWorkerCount(8))

	go func() { _ = processor.Start(ctx) }()

	total := 100
	for i := 0; i < total; i++ {
		theme := fmt.Sprintf("theme-%d", i)
		if _, err := service.Submit(ctx, SubmitRequest{Theme: theme, Budget: 50}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Completed == int64(total) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("tasks not processed in time, completed %d", stats.Completed)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorSkipsFinishedTask(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	executor := &fakeExecutor{}
	processor := NewProcessor(executor, store, NewMemoryQueue(16))

	if err := store.Create(ctx, &Task{ID: "t1", Theme: "acme", Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "t1"); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if executor.executed.Load() != 1 {
		t.Fatalf("expected 1 execution, got %d", executor.executed.Load())
	}

	// 重复投递同一任务不触发二次执行。
	if err := processor.handle(ctx, "t1"); err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if executor.executed.Load() != 1 {
		t.Fatalf("expected execution to stay at 1, got %d", executor.executed.Load())
	}
}

func TestProcessorRecordsProtocolFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	executor := &fakeExecutor{err: xerrors.New(xerrors.CodeBudgetExceeded, "quote above budget")}
	processor := NewProcessor(executor, store, NewMemoryQueue(16))

	if err := store.Create(ctx, &Task{ID: "t1", Theme: "acme", Budget: 5, Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := processor.handle(ctx, "t1"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.FailCode != string(xerrors.CodeBudgetExceeded) {
		t.Fatalf("expected BUDGET_EXCEEDED, got %s", got.FailCode)
	}

	// 协议失败是终态,不会被重新执行。
	if err := processor.handle(ctx, "t1"); err != nil {
		t.Fatalf("re-handle: %v", err)
	}
	if executor.executed.Load() != 1 {
		t.Fatalf("expected no re-execution, got %d", executor.executed.Load())
	}
}

func TestProcessorSkipsUnknownTask(t *testing.T) {
	processor := NewProcessor(&fakeExecutor{}, NewMemoryStore(), NewMemoryQueue(16))
	if err := processor.handle(context.Background(), "missing"); err != nil {
		t.Fatalf("expected unknown task to be skipped, got %v", err)
	}
}
