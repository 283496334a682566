package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// runContract exercises every Store operation against a fresh, empty store
// returned by open.
func runContract(t *testing.T, open func(t *testing.T) Store) {
	t.Helper()

	t.Run("InsertIsIdempotent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		first, err := s.Insert(ctx, NewItem{BusinessKey: "bid-1", ResourceLocator: "https://example.test/1", Page: 3})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if first.ID == 0 || first.Status != StatusNew || first.Page != 3 {
			t.Fatalf("unexpected inserted item: %#v", first)
		}
		second, err := s.Insert(ctx, NewItem{BusinessKey: "bid-1", ResourceLocator: "https://example.test/other"})
		if err != nil {
			t.Fatalf("Insert duplicate: %v", err)
		}
		if second.ID != first.ID || second.ResourceLocator != first.ResourceLocator {
			t.Fatalf("duplicate insert changed row: first=%#v second=%#v", first, second)
		}
		if _, err := s.Insert(ctx, NewItem{BusinessKey: " ", ResourceLocator: "x"}); err == nil {
			t.Fatal("expected error for empty business key")
		}
	})

	t.Run("GetMissingReturnsNil", func(t *testing.T) {
		s := open(t)
		item, err := s.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if item != nil {
			t.Fatalf("expected nil item, got %#v", item)
		}
	})

	t.Run("SelectAndMarkQueued", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 5)

		batch, err := s.SelectAndMarkQueued(ctx, 3)
		if err != nil {
			t.Fatalf("SelectAndMarkQueued: %v", err)
		}
		if len(batch) != 3 {
			t.Fatalf("expected 3 items, got %d", len(batch))
		}
		for i, item := range batch {
			if item.Status != StatusQueued || item.QueuedAt == nil {
				t.Fatalf("item %d not queued: %#v", i, item)
			}
			if i > 0 && batch[i-1].ID >= item.ID {
				t.Fatalf("batch not ordered by id")
			}
		}

		rest, err := s.SelectAndMarkQueued(ctx, 10)
		if err != nil {
			t.Fatalf("SelectAndMarkQueued rest: %v", err)
		}
		if len(rest) != 2 {
			t.Fatalf("expected remaining 2 items, got %d", len(rest))
		}
		empty, err := s.SelectAndMarkQueued(ctx, 10)
		if err != nil {
			t.Fatalf("SelectAndMarkQueued empty: %v", err)
		}
		if len(empty) != 0 {
			t.Fatalf("expected empty batch, got %d", len(empty))
		}
		if _, err := s.SelectAndMarkQueued(ctx, 0); err == nil {
			t.Fatal("expected error for zero batch size")
		}
	})

	t.Run("ConcurrentProducersGetDisjointBatches", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 40)

		var (
			mu   sync.Mutex
			seen = make(map[int64]int)
			wg   sync.WaitGroup
		)
		errs := make(chan error, 4)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					batch, err := s.SelectAndMarkQueued(ctx, 5)
					if err != nil {
						errs <- err
						return
					}
					if len(batch) == 0 {
						return
					}
					mu.Lock()
					for _, item := range batch {
						seen[item.ID]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("producer error: %v", err)
		}
		if len(seen) != 40 {
			t.Fatalf("expected 40 distinct items, got %d", len(seen))
		}
		for id, count := range seen {
			if count != 1 {
				t.Fatalf("item %d selected %d times", id, count)
			}
		}
	})

	t.Run("RevertToNew", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 10)
		batch, err := s.SelectAndMarkQueued(ctx, 10)
		if err != nil {
			t.Fatalf("SelectAndMarkQueued: %v", err)
		}
		ids := make([]int64, 0, len(batch))
		for _, item := range batch {
			ids = append(ids, item.ID)
		}
		reverted, err := s.RevertToNew(ctx, ids)
		if err != nil {
			t.Fatalf("RevertToNew: %v", err)
		}
		if reverted != 10 {
			t.Fatalf("expected 10 reverted, got %d", reverted)
		}
		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats[StatusNew] != 10 || stats[StatusQueued] != 0 {
			t.Fatalf("unexpected stats after revert: %v", stats)
		}
	})

	t.Run("ClaimLifecycle", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 1)

		claimed, err := s.Claim(ctx, "bid-0", "worker-a")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if claimed == nil {
			t.Fatal("expected claim to succeed")
		}
		if claimed.Status != StatusProcessing || claimed.LockOwner != "worker-a" || claimed.Attempts != 1 {
			t.Fatalf("unexpected claimed row: %#v", claimed)
		}
		if claimed.ClaimedAt == nil || claimed.LastHeartbeat == nil {
			t.Fatalf("claim timestamps not set: %#v", claimed)
		}

		again, err := s.Claim(ctx, "bid-0", "worker-b")
		if err != nil {
			t.Fatalf("second Claim: %v", err)
		}
		if again != nil {
			t.Fatalf("expected processing row to be unclaimable, got %#v", again)
		}

		if err := s.Heartbeat(ctx, "bid-0", "worker-b"); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("expected ErrClaimLost for foreign heartbeat, got %v", err)
		}
		if err := s.Heartbeat(ctx, "bid-0", "worker-a"); err != nil {
			t.Fatalf("Heartbeat: %v", err)
		}

		result := Result{ResultLocator: "/out/bid_0.json", Confidence: 0.75, FieldsJSON: `{"buyer":"x"}`}
		if err := s.MarkDone(ctx, "bid-0", "worker-b", result); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("expected ErrClaimLost for foreign MarkDone, got %v", err)
		}
		if err := s.MarkDone(ctx, "bid-0", "worker-a", result); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
		done, err := s.Get(ctx, "bid-0")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if done.Status != StatusDone || done.LockOwner != "" || done.ResultLocator != result.ResultLocator {
			t.Fatalf("unexpected done row: %#v", done)
		}
		if done.Confidence != 0.75 || done.FieldsJSON != result.FieldsJSON {
			t.Fatalf("result fields not persisted: %#v", done)
		}

		redo, err := s.Claim(ctx, "bid-0", "worker-a")
		if err != nil {
			t.Fatalf("Claim done row: %v", err)
		}
		if redo != nil {
			t.Fatalf("expected done row to be unclaimable, got %#v", redo)
		}
		if _, err := s.Claim(ctx, "bid-0", ""); err == nil {
			t.Fatal("expected error for empty owner")
		}
	})

	t.Run("MarkFailedExhaustsAtLimit", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 1)

		for attempt := 1; attempt <= 3; attempt++ {
			claimed, err := s.Claim(ctx, "bid-0", "worker-a")
			if err != nil || claimed == nil {
				t.Fatalf("attempt %d: claim=%v err=%v", attempt, claimed, err)
			}
			if claimed.Attempts != attempt {
				t.Fatalf("attempt %d: attempts=%d", attempt, claimed.Attempts)
			}
			exhausted, err := s.MarkFailed(ctx, "bid-0", "worker-a", "fetch_failed: boom", 3)
			if err != nil {
				t.Fatalf("attempt %d: MarkFailed: %v", attempt, err)
			}
			if exhausted != (attempt == 3) {
				t.Fatalf("attempt %d: exhausted=%v", attempt, exhausted)
			}
		}

		item, err := s.Get(ctx, "bid-0")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if item.Status != StatusFailed || !item.Exhausted || item.LockOwner != "" {
			t.Fatalf("unexpected exhausted row: %#v", item)
		}
		if item.ErrorReason != "fetch_failed: boom" {
			t.Fatalf("unexpected error reason %q", item.ErrorReason)
		}
		if claimed, err := s.Claim(ctx, "bid-0", "worker-a"); err != nil || claimed != nil {
			t.Fatalf("exhausted row claimable: claim=%v err=%v", claimed, err)
		}
		if batch, err := s.SelectAndMarkQueued(ctx, 10); err != nil || len(batch) != 0 {
			t.Fatalf("exhausted row selected: batch=%d err=%v", len(batch), err)
		}
		if _, err := s.MarkFailed(ctx, "bid-0", "worker-a", "again", 3); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("expected ErrClaimLost on failed row, got %v", err)
		}
	})

	t.Run("RetryableFailedIsRequeued", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 1)
		if _, err := s.Claim(ctx, "bid-0", "worker-a"); err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if _, err := s.MarkFailed(ctx, "bid-0", "worker-a", "transient", 3); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
		batch, err := s.SelectAndMarkQueued(ctx, 10)
		if err != nil {
			t.Fatalf("SelectAndMarkQueued: %v", err)
		}
		if len(batch) != 1 || batch[0].BusinessKey != "bid-0" || batch[0].Attempts != 1 {
			t.Fatalf("expected retryable failed row requeued, got %#v", batch)
		}
	})

	t.Run("RetryExhaustedKeepsAttempts", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 2)
		for _, key := range []string{"bid-0", "bid-1"} {
			if _, err := s.Claim(ctx, key, "w"); err != nil {
				t.Fatalf("Claim %s: %v", key, err)
			}
			if _, err := s.MarkFailed(ctx, key, "w", "boom", 1); err != nil {
				t.Fatalf("MarkFailed %s: %v", key, err)
			}
		}
		reset, err := s.RetryExhausted(ctx, "bid-0")
		if err != nil {
			t.Fatalf("RetryExhausted: %v", err)
		}
		if reset != 1 {
			t.Fatalf("expected 1 reset, got %d", reset)
		}
		item, _ := s.Get(ctx, "bid-0")
		if item.Status != StatusNew || item.Exhausted || item.Attempts != 1 {
			t.Fatalf("unexpected reset row: %#v", item)
		}
		other, _ := s.Get(ctx, "bid-1")
		if !other.Exhausted {
			t.Fatalf("bid-1 should remain exhausted")
		}
		all, err := s.RetryExhausted(ctx)
		if err != nil || all != 1 {
			t.Fatalf("RetryExhausted all: n=%d err=%v", all, err)
		}

		claimed, err := s.Claim(ctx, "bid-0", "w")
		if err != nil || claimed == nil {
			t.Fatalf("reclaim after reset: %v %v", claimed, err)
		}
		exhausted, err := s.MarkFailed(ctx, "bid-0", "w", "boom", 1)
		if err != nil || !exhausted {
			t.Fatalf("expected immediate exhaustion, exhausted=%v err=%v", exhausted, err)
		}
	})

	t.Run("ReclaimStale", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 2)
		for _, key := range []string{"bid-0", "bid-1"} {
			if _, err := s.Claim(ctx, key, "w"); err != nil {
				t.Fatalf("Claim %s: %v", key, err)
			}
		}

		n, err := s.ReclaimStale(ctx, time.Now().Add(-time.Hour), 3)
		if err != nil {
			t.Fatalf("ReclaimStale past cutoff: %v", err)
		}
		if n != 0 {
			t.Fatalf("fresh claims reclaimed: %d", n)
		}

		n, err = s.ReclaimStale(ctx, time.Now().Add(time.Minute), 1)
		if err != nil {
			t.Fatalf("ReclaimStale: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 reclaimed, got %d", n)
		}
		item, _ := s.Get(ctx, "bid-0")
		if item.Status != StatusFailed || item.LockOwner != "" || item.ErrorReason != StaleClaimReason || !item.Exhausted {
			t.Fatalf("unexpected reclaimed row: %#v", item)
		}
		if err := s.MarkDone(ctx, "bid-0", "w", Result{}); !errors.Is(err, ErrClaimLost) {
			t.Fatalf("expected ErrClaimLost after reclaim, got %v", err)
		}
	})

	t.Run("RequeueStranded", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 3)
		if _, err := s.SelectAndMarkQueued(ctx, 3); err != nil {
			t.Fatalf("SelectAndMarkQueued: %v", err)
		}
		n, err := s.RequeueStranded(ctx, time.Now().Add(-time.Hour))
		if err != nil || n != 0 {
			t.Fatalf("fresh queued rows requeued: n=%d err=%v", n, err)
		}
		n, err = s.RequeueStranded(ctx, time.Now().Add(time.Minute))
		if err != nil {
			t.Fatalf("RequeueStranded: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 requeued, got %d", n)
		}
		items, err := s.List(ctx, StatusNew)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(items) != 3 || items[0].QueuedAt != nil {
			t.Fatalf("unexpected requeued items: %#v", items)
		}
	})

	t.Run("ListFiltersByStatus", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		seed(t, s, 4)
		if _, err := s.Claim(ctx, "bid-2", "w"); err != nil {
			t.Fatalf("Claim: %v", err)
		}
		all, err := s.List(ctx)
		if err != nil || len(all) != 4 {
			t.Fatalf("List all: n=%d err=%v", len(all), err)
		}
		processing, err := s.List(ctx, StatusProcessing)
		if err != nil {
			t.Fatalf("List processing: %v", err)
		}
		if len(processing) != 1 || processing[0].BusinessKey != "bid-2" {
			t.Fatalf("unexpected processing list: %#v", processing)
		}
		mixed, err := s.List(ctx, StatusNew, StatusProcessing)
		if err != nil || len(mixed) != 4 {
			t.Fatalf("List mixed: n=%d err=%v", len(mixed), err)
		}
	})
}

// runClaimRace checks that concurrent claims on one queued row admit exactly one owner.
func runClaimRace(t *testing.T, s Store, workers int) {
	t.Helper()
	ctx := context.Background()
	seed(t, s, 1)
	if _, err := s.SelectAndMarkQueued(ctx, 1); err != nil {
		t.Fatalf("SelectAndMarkQueued: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	errs := make(chan error, workers)
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			<-start
			item, err := s.Claim(ctx, "bid-0", owner)
			if err != nil {
				errs <- err
				return
			}
			if item != nil {
				mu.Lock()
				winners = append(winners, owner)
				mu.Unlock()
			}
		}(fmt.Sprintf("worker-%d", i))
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("claim error: %v", err)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	item, err := s.Get(ctx, "bid-0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.LockOwner != winners[0] || item.Attempts != 1 {
		t.Fatalf("row does not reflect single winner: %#v", item)
	}
}

func seed(t *testing.T, s Store, n int) {
	t.Helper()
	for i := range n {
		key := fmt.Sprintf("bid-%d", i)
		if _, err := s.Insert(context.Background(), NewItem{BusinessKey: key, ResourceLocator: "https://example.test/" + key}); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}
}
