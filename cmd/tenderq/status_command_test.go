package main

import (
	"os"
	"testing"

	"tenderq/internal/logging"
	"tenderq/internal/status"
)

func TestStatusRendersCountersAndRecent(t *testing.T) {
	env := setupCLITestEnv(t)
	file := status.NewFile(env.cfg.Status.Path, env.cfg.Status.RecentCap, logging.NewNop())
	file.Increment(status.CounterDone, 3)
	file.Increment(status.CounterFailed, 1)
	file.PushRecent(status.Event{BusinessKey: "S-1", Status: "persisted", Worker: "w1"})
	file.Snapshot(status.Snapshot{Stage: "running", Message: "tenderqd running"})

	if _, _, err := runCLI(t, []string{"add", "S-1", "https://example.test/s"}, env.configPath); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Pipeline ==")
	requireContains(t, out, "[INFO] running")
	requireContains(t, out, "[WARN] 1")
	requireContains(t, out, "workers_active")
	requireContains(t, out, "== Work store ==")
	requireContains(t, out, "persisted")
	requireContains(t, out, "S-1")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"done": 3`)
}

func TestStatusReset(t *testing.T) {
	env := setupCLITestEnv(t)
	file := status.NewFile(env.cfg.Status.Path, env.cfg.Status.RecentCap, logging.NewNop())
	file.Increment(status.CounterEnqueued, 5)

	out, _, err := runCLI(t, []string{"status", "--reset"}, env.configPath)
	if err != nil {
		t.Fatalf("status --reset: %v", err)
	}
	requireContains(t, out, "Removed status document")
	if _, err := os.Stat(env.cfg.Status.Path); !os.IsNotExist(err) {
		t.Fatalf("expected status document removed, stat err=%v", err)
	}
}

func TestHealthPassesWithLocalBackends(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "Work store")
	requireContains(t, out, "Queue transport")
	requireContains(t, out, "All required checks passed")
}

func TestHealthFailsWhenOutputDirIsAFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.RemoveAll(env.cfg.Paths.OutputDir); err != nil {
		t.Fatalf("remove output dir: %v", err)
	}
	if err := os.WriteFile(env.cfg.Paths.OutputDir, []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, _, err := runCLI(t, []string{"health"}, env.configPath); err == nil {
		t.Fatal("expected health to fail when output dir is a file")
	}
}
