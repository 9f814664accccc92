package task

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"
)

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, &Task{ID: "t1", Theme: "acme", Budget: 50, Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed state %+v", claimed)
	}

	// 运行中的任务不能被再次认领。
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected ErrTaskConflict, got %v", err)
	}

	if err := store.MarkCompleted(ctx, "t1", "## acme\n\nreport"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	// 终态任务的重复认领按空操作处理。
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTaskFinished) {
		t.Fatalf("expected ErrTaskFinished, got %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.Report == "" {
		t.Fatalf("unexpected final state %+v", got)
	}
}

func TestMemoryStoreMarkFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, &Task{ID: "t1", Theme: "acme", Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "t1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "t1", "BUDGET_EXCEEDED", "quote above budget"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.FailCode != "BUDGET_EXCEEDED" {
		t.Fatalf("unexpected state %+v", got)
	}
	if _, err := store.Claim(ctx, "t1"); !stdErrors.Is(err, ErrTaskFinished) {
		t.Fatalf("expected failed task to stay terminal, got %v", err)
	}
}

func TestMemoryStoreCreateConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, &Task{ID: "t1", Theme: "a", Status: StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "t1", Theme: "b", Status: StatusPending}); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected ErrTaskConflict, got %v", err)
	}
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now().Add(-2 * time.Minute)

	for _, seed := range []*Task{
		{ID: "t1", Theme: "alpha", Status: StatusPending},
		{ID: "t2", Theme: "beta", Status: StatusPending},
		{ID: "t3", Theme: "gamma", Status: StatusPending},
	} {
		if err := store.Create(ctx, seed); err != nil {
			t.Fatalf("create %s: %v", seed.ID, err)
		}
	}
	if _, err := store.Claim(ctx, "t2"); err != nil {
		t.Fatalf("claim t2: %v", err)
	}
	if err := store.MarkFailed(ctx, "t2", "PAYMENT_NOT_HONORED", "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "t3"); err != nil {
		t.Fatalf("claim t3: %v", err)
	}
	if err := store.MarkCompleted(ctx, "t3", "## gamma\n\nok"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, ListOptions{Statuses: []Status{StatusFailed}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list %+v", failed)
	}

	hasReport := true
	withReport, err := store.List(ctx, ListOptions{HasReport: &hasReport})
	if err != nil {
		t.Fatalf("list with report: %v", err)
	}
	if len(withReport) != 1 || withReport[0].ID != "t3" {
		t.Fatalf("unexpected report list %+v", withReport)
	}

	byQuery, err := store.List(ctx, ListOptions{Query: "alpha"})
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t1" {
		t.Fatalf("unexpected query list %+v", byQuery)
	}

	ascending, err := store.List(ctx, ListOptions{Order: SortByUpdatedAsc})
	if err != nil {
		t.Fatalf("list ascending: %v", err)
	}
	if len(ascending) != 3 || ascending[0].ID != "t1" || ascending[2].ID != "t3" {
		t.Fatalf("unexpected ascending list %+v", ascending)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, id := range []string{"t1", "t2", "t3"} {
		if err := store.Create(ctx, &Task{ID: id, Theme: id, Status: StatusPending}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := store.Claim(ctx, "t1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCompleted(ctx, "t1", "ok"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 2 || stats.Completed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
