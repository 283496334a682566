package main

import (
	"context"
	"testing"
	"time"

	"tenderq/internal/daemon"
	"tenderq/internal/logging"
	"tenderq/internal/testsupport"
)

func TestBuildComponentsRunsDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	comps, err := buildComponents(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	if comps.Store == nil || comps.Transport == nil || comps.Fetcher == nil || comps.Transformer == nil || comps.Recorder == nil {
		t.Fatalf("expected every component, got %+v", comps)
	}

	d, err := daemon.New(cfg, comps, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := d.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := d.Status(); !got.Running || got.Transport != "memory:list" {
		t.Fatalf("unexpected status: %+v", got)
	}

	cancel()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Err(); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
}

func TestBuildComponentsRejectsBadStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.Driver = "oracle"
	if _, err := buildComponents(context.Background(), cfg, logging.NewNop()); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
}
