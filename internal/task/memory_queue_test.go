package task

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(4)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), "t1"); err == nil {
		t.Fatal("expected error publishing to closed queue")
	}
	// 重复关闭是无操作。
	if err := queue.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemoryQueueCloseUnblocksFullPublish(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(1)
	if err := queue.Publish(ctx, "t1"); err != nil {
		t.Fatalf("publish: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- queue.Publish(ctx, "t2") }()

	time.Sleep(20 * time.Millisecond)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected blocked publish to fail on close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publish not released by close")
	}
}

func TestMemoryQueueConcurrentPublishAndClose(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(8)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := queue.Publish(ctx, "t"); err != nil {
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		_ = queue.Close()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishers not released after close")
	}
}

func TestMemoryQueueConsumeStopsOnClose(t *testing.T) {
	ctx := context.Background()
	queue := NewMemoryQueue(16)

	consumed := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Consume(ctx, 2, func(_ context.Context, taskID string) error {
			consumed <- taskID
			return nil
		})
	}()

	if err := queue.Publish(ctx, "t1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case id := <-consumed:
		if id != "t1" {
			t.Fatalf("expected t1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task not consumed")
	}

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("consume returned error on close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after close")
	}
}
