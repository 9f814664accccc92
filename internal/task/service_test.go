package task

import (
	"context"
	"testing"
	"time"

	xerrors "AgentPay/internal/errors"
)

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	svc := NewService(store, queue)

	created, err := svc.Submit(ctx, SubmitRequest{Theme: "acme", Budget: 50, VoiceID: "agent-1"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.ID == "" || created.Status != StatusPending {
		t.Fatalf("unexpected task %+v", created)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Theme != "acme" || got.Budget != 50 {
		t.Fatalf("unexpected stored task %+v", got)
	}
}

func TestServiceSubmitEmptyTheme(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewMemoryQueue(16))

	_, err := svc.Submit(context.Background(), SubmitRequest{Theme: "   ", Budget: 10})
	if err == nil {
		t.Fatal("expected an error")
	}
	if xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("expected %s, got %s", CodeTaskValidation, xerrors.CodeOf(err))
	}
}

func TestServiceSubmitNegativeBudget(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewMemoryQueue(16))

	_, err := svc.Submit(context.Background(), SubmitRequest{Theme: "acme", Budget: -1})
	if err == nil {
		t.Fatal("expected an error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeInvalidBudget {
		t.Fatalf("expected INVALID_BUDGET, got %s", xerrors.CodeOf(err))
	}

	// 被拒绝的提交不产生任务记录。
	tasks, err := store.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasks))
	}
}

func TestServiceSubmitIdempotentByID(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), NewMemoryQueue(16))

	first, err := svc.Submit(ctx, SubmitRequest{ID: "fixed", Theme: "acme", Budget: 50})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := svc.Submit(ctx, SubmitRequest{ID: "fixed", Theme: "other", Budget: 1})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second.ID != first.ID || second.Theme != "acme" {
		t.Fatalf("expected existing task to be returned, got %+v", second)
	}
}

func TestServiceWaitUntilCompleted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	svc := NewService(store, NewMemoryQueue(16))

	created, err := svc.Submit(ctx, SubmitRequest{Theme: "acme", Budget: 50})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		if _, err := store.Claim(ctx, created.ID); err != nil {
			t.Errorf("claim: %v", err)
			return
		}
		if err := store.MarkCompleted(ctx, created.ID, "done"); err != nil {
			t.Errorf("mark completed: %v", err)
		}
	}()

	final, err := svc.WaitUntilCompleted(ctx, created.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
}
