package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/daemon"
	"tenderq/internal/fetch"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/testsupport"
	"tenderq/internal/transform"
	"tenderq/internal/transport"
)

type brokenBatchStore struct {
	store.Store
}

func (brokenBatchStore) SelectAndMarkQueued(context.Context, int) ([]*store.Item, error) {
	return nil, errors.New("batch select unavailable")
}

type errorNotifier struct {
	errs chan error
}

func (n *errorNotifier) NotifyItemExhausted(context.Context, string, string, int) error { return nil }
func (n *errorNotifier) TestNotification(context.Context) error                         { return nil }

func (n *errorNotifier) NotifyError(_ context.Context, err error, contextLabel string) error {
	if contextLabel != "tenderqd" {
		return fmt.Errorf("unexpected context label %q", contextLabel)
	}
	n.errs <- err
	return nil
}

func newDaemon(t *testing.T, cfg *config.Config, s store.Store, rec status.Recorder) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, daemon.Components{
		Store:       s,
		Transport:   transport.NewMemory(),
		Fetcher:     fetch.NewFromConfig(cfg, nil),
		Transformer: transform.New(transform.Options{}, nil),
		Recorder:    rec,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Producer.IntervalSeconds = 1
	cfg.Sweep.IntervalSeconds = 1
	cfg.Worker.Concurrency = 2
	return cfg
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := d.Status()
	if !st.Running {
		t.Fatal("expected daemon to report running")
	}
	if st.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", st.Workers)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := d.Err(); err != nil {
		t.Fatalf("unexpected component error: %v", err)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	first := newDaemon(t, cfg, s, nil)
	second := newDaemon(t, cfg, s, nil)

	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer first.Stop()

	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestDaemonProcessesBacklog(t *testing.T) {
	cfg := testConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(cfg), "src", "bid.txt"), testsupport.SampleBidText)
	const items = 5
	for i := range items {
		testsupport.SeedItem(t, s, fmt.Sprintf("GEM/2025/B/%d", i), doc)
	}
	rec := testsupport.NewRecorder()
	d := newDaemon(t, cfg, s, rec)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(20 * time.Second)
	for {
		stats, err := s.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats[store.StatusDone] == items {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("backlog not processed: %v", stats)
		}
		time.Sleep(25 * time.Millisecond)
	}
	d.Stop()

	if got := rec.Count(status.CounterEnqueued); got != items {
		t.Fatalf("expected enqueued=%d, got %d", items, got)
	}
	if got := rec.Count(status.CounterDone); got != items {
		t.Fatalf("expected done=%d, got %d", items, got)
	}
}

func TestStartFailsPreflight(t *testing.T) {
	cfg := testConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	cfg.Paths.OutputDir = filepath.Join(testsupport.BaseDir(cfg), "missing-output")
	d := newDaemon(t, cfg, s, nil)

	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected preflight failure")
	}
	if d.Status().Running {
		t.Fatal("daemon should not be running after a failed preflight")
	}
}

func TestComponentFailureStopsDaemonAndNotifies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Producer.MaxConsecutiveErrors = 1
	s := testsupport.MustOpenStore(t, cfg)
	notifier := &errorNotifier{errs: make(chan error, 1)}
	d, err := daemon.New(cfg, daemon.Components{
		Store:       brokenBatchStore{Store: s},
		Transport:   transport.NewMemory(),
		Fetcher:     fetch.NewFromConfig(cfg, nil),
		Transformer: transform.New(transform.Options{}, nil),
		Notifier:    notifier,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	select {
	case <-d.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop after producer failure")
	}
	if err := d.Err(); err == nil || !strings.Contains(err.Error(), "batch select unavailable") {
		t.Fatalf("expected producer error, got %v", err)
	}

	select {
	case got := <-notifier.errs:
		if !strings.Contains(got.Error(), "batch select unavailable") {
			t.Fatalf("unexpected notified error: %v", got)
		}
	default:
		t.Fatal("expected failure notification before Done closed")
	}
}

func TestWaitDrainedReturnsOnceBacklogIsDone(t *testing.T) {
	cfg := testConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(cfg), "src", "bid.txt"), testsupport.SampleBidText)
	const items = 3
	for i := range items {
		testsupport.SeedItem(t, s, fmt.Sprintf("GEM/2025/B/%d", i), doc)
	}
	rec := testsupport.NewRecorder()
	d := newDaemon(t, cfg, s, rec)

	if err := d.WaitDrained(context.Background(), daemon.DrainOptions{}); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before Start, got %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.WaitDrained(ctx, daemon.DrainOptions{PollInterval: 50 * time.Millisecond, EmptyPolls: 3}); err != nil {
		t.Fatalf("WaitDrained: %v", err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[store.StatusDone] != items {
		t.Fatalf("drained before every item finished: %v", stats)
	}
}

func TestWaitDrainedReportsComponentFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Producer.MaxConsecutiveErrors = 1
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItem(t, s, "GEM/2025/B/1", "https://example.test/doc")
	d, err := daemon.New(cfg, daemon.Components{
		Store:       brokenBatchStore{Store: s},
		Transport:   transport.NewMemory(),
		Fetcher:     fetch.NewFromConfig(cfg, nil),
		Transformer: transform.New(transform.Options{}, nil),
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = d.WaitDrained(ctx, daemon.DrainOptions{PollInterval: 20 * time.Millisecond, EmptyPolls: 2})
	if err == nil || !strings.Contains(err.Error(), "batch select unavailable") {
		t.Fatalf("expected the producer failure, got %v", err)
	}
}
