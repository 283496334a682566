package transport

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// runContract checks the behavior every transport shares, on an empty queue.
func runContract(t *testing.T, tr Transport) {
	t.Helper()
	ctx := context.Background()

	empty, err := tr.Next(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Next on empty queue: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil delivery on timeout, got %#v", empty)
	}

	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{ID: int64(i + 1), BusinessKey: fmt.Sprintf("bid-%d", i), ResourceLocator: "https://example.test/doc", Page: 2}
	}
	if err := tr.Publish(ctx, tasks); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := tr.Publish(ctx, nil); err != nil {
		t.Fatalf("Publish empty batch: %v", err)
	}
	n, err := tr.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected length 3, got %d", n)
	}

	for i := range tasks {
		d, err := tr.Next(ctx, 2*time.Second)
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if d == nil {
			t.Fatalf("Next %d: expected delivery", i)
		}
		if d.Task != tasks[i] {
			t.Fatalf("Next %d: got %#v, want %#v", i, d.Task, tasks[i])
		}
		if err := tr.Ack(ctx, d); err != nil {
			t.Fatalf("Ack %d: %v", i, err)
		}
	}

	after, err := tr.Next(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Next after drain: %v", err)
	}
	if after != nil {
		t.Fatalf("expected drained queue, got %#v", after.Task)
	}
	// Acknowledged work-queue removals may land just after the ack returns.
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err = tr.Len(ctx)
		if err != nil {
			t.Fatalf("Len after drain: %v", err)
		}
		if n == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if n != 0 {
		t.Fatalf("expected length 0 after every task was acked, got %d", n)
	}
	if tr.Describe() == "" {
		t.Fatal("Describe should not be empty")
	}
}
