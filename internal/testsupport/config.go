package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tenderq/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It uses the SQLite store and the in-memory list transport with short timings,
// then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.PDFDir = filepath.Join(base, "pdf")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.SQLitePath = filepath.Join(base, "state", "tenderq.db")
	cfgVal.Status.Path = filepath.Join(base, "state", "status.json")
	cfgVal.Status.RecentCap = 80
	cfgVal.Transport.Backend = config.BackendMemory
	cfgVal.Transport.Mode = config.ModeList
	cfgVal.Worker.ID = "test-worker"
	cfgVal.Worker.Concurrency = 1
	cfgVal.Worker.PollTimeoutSeconds = 1
	cfgVal.Worker.TaskTimeoutSeconds = 10
	cfgVal.Worker.HeartbeatIntervalSeconds = 1
	cfgVal.Worker.ErrorBackoffSeconds = 1
	cfgVal.Producer.ErrorBackoffSeconds = 1
	cfgVal.Fetch.TimeoutSeconds = 5
	cfgVal.Fetch.RetryDelayMillis = 10
	cfgVal.Transform.PDFToText = ""
	cfgVal.Logging.Format = "json"
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithTransport selects the transport backend and mode.
func WithTransport(backend, mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transport.Backend = backend
		b.cfg.Transport.Mode = mode
	}
}

// WithMaxAttempts overrides the per-item attempt limit.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.MaxAttempts = n
	}
}

// WithWorkerID overrides the worker identity.
func WithWorkerID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.ID = id
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
