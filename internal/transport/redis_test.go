package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tenderq/internal/config"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisListContract(t *testing.T) {
	_, client := newMiniredisClient(t)
	tr := NewRedisList(client, "gem_tasks")
	t.Cleanup(func() { _ = tr.Close() })
	runContract(t, tr)
}

func TestRedisListUsesSharedQueueKey(t *testing.T) {
	mr, client := newMiniredisClient(t)
	tr := NewRedisList(client, "gem_tasks")
	defer tr.Close()

	if err := tr.Publish(context.Background(), []Task{{ID: 1, BusinessKey: "bid-1", ResourceLocator: "u"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	items, err := mr.List("gem_tasks")
	if err != nil {
		t.Fatalf("miniredis List: %v", err)
	}
	if len(items) != 1 || items[0] != `{"id":1,"business_key":"bid-1","resource_locator":"u"}` {
		t.Fatalf("unexpected list payload: %v", items)
	}
}

func TestRedisStreamContract(t *testing.T) {
	_, client := newMiniredisClient(t)
	tr, err := NewRedisStream(context.Background(), client, RedisStreamOptions{
		Stream:   "pdf_stream",
		Group:    "pdf_consumers",
		Consumer: "w1",
	})
	if err != nil {
		t.Fatalf("NewRedisStream: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	runContract(t, tr)
}

func TestRedisStreamGroupCreationIsIdempotent(t *testing.T) {
	_, client := newMiniredisClient(t)
	opts := RedisStreamOptions{Stream: "pdf_stream", Group: "pdf_consumers", Consumer: "w1"}
	for range 2 {
		if _, err := NewRedisStream(context.Background(), client, opts); err != nil {
			t.Fatalf("NewRedisStream: %v", err)
		}
	}
}

func TestRedisStreamReclaimsUnackedEntries(t *testing.T) {
	_, client := newMiniredisClient(t)
	ctx := context.Background()
	first, err := NewRedisStream(ctx, client, RedisStreamOptions{
		Stream: "pdf_stream", Group: "pdf_consumers", Consumer: "w1", ClaimIdle: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisStream w1: %v", err)
	}
	second, err := NewRedisStream(ctx, client, RedisStreamOptions{
		Stream: "pdf_stream", Group: "pdf_consumers", Consumer: "w2", ClaimIdle: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisStream w2: %v", err)
	}

	task := Task{ID: 1, BusinessKey: "bid-1", ResourceLocator: "u"}
	if err := first.Publish(ctx, []Task{task}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	d, err := first.Next(ctx, time.Second)
	if err != nil || d == nil {
		t.Fatalf("first Next: d=%v err=%v", d, err)
	}
	// w1 crashes without acknowledging.

	time.Sleep(120 * time.Millisecond)
	re, err := second.Next(ctx, time.Second)
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if re == nil || re.Task != task || !re.Redelivered {
		t.Fatalf("expected redelivered task, got %#v", re)
	}
	if err := second.Ack(ctx, re); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	none, err := second.Next(ctx, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Next after ack: %v", err)
	}
	if none != nil {
		t.Fatalf("acked entry redelivered: %#v", none)
	}
}

func TestRedisStreamAckDeletesEntry(t *testing.T) {
	mr, client := newMiniredisClient(t)
	ctx := context.Background()
	tr, err := NewRedisStream(ctx, client, RedisStreamOptions{Stream: "pdf_stream", Group: "pdf_consumers", Consumer: "w1"})
	if err != nil {
		t.Fatalf("NewRedisStream: %v", err)
	}
	defer tr.Close()

	tasks := []Task{
		{ID: 1, BusinessKey: "bid-1", ResourceLocator: "u"},
		{ID: 2, BusinessKey: "bid-2", ResourceLocator: "u"},
	}
	if err := tr.Publish(ctx, tasks); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	d, err := tr.Next(ctx, time.Second)
	if err != nil || d == nil {
		t.Fatalf("Next: d=%v err=%v", d, err)
	}
	// One delivered but unacked, one undelivered.
	if n, err := tr.Len(ctx); err != nil || n != 2 {
		t.Fatalf("Len with one pending: n=%d err=%v", n, err)
	}
	if err := tr.Ack(ctx, d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if n, err := tr.Len(ctx); err != nil || n != 1 {
		t.Fatalf("Len after ack: n=%d err=%v", n, err)
	}
	entries, err := mr.Stream("pdf_stream")
	if err != nil {
		t.Fatalf("miniredis Stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected acked entry to be deleted, stream holds %d", len(entries))
	}
}

func TestOpenRedisFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Transport.Backend = config.BackendRedis
	cfg.Transport.RedisURL = "redis://" + mr.Addr() + "/0"

	for _, mode := range []string{config.ModeList, config.ModeStream} {
		cfg.Transport.Mode = mode
		tr, err := Open(context.Background(), &cfg, "w1")
		if err != nil {
			t.Fatalf("Open %s: %v", mode, err)
		}
		if err := tr.Publish(context.Background(), []Task{{BusinessKey: "k", ResourceLocator: "u"}}); err != nil {
			t.Fatalf("Publish %s: %v", mode, err)
		}
		_ = tr.Close()
	}
}
