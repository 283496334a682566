package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tenderq/internal/config"
	"tenderq/internal/logging"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg, "worker")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("task claimed", logging.BusinessKey("GEM/2024/B/1"))

	data, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "worker.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &record); err != nil {
		t.Fatalf("log file line is not JSON: %v (%s)", err, data)
	}
	if record["msg"] != "task claimed" {
		t.Fatalf("unexpected msg: %v", record["msg"])
	}
	if record["business_key"] != "GEM/2024/B/1" {
		t.Fatalf("unexpected business key: %v", record["business_key"])
	}
	if record["level"] != "info" {
		t.Fatalf("unexpected level: %v", record["level"])
	}
}

func TestConsoleLoggerSourceOnlyAtDebug(t *testing.T) {
	tempDir := t.TempDir()
	infoPath := filepath.Join(tempDir, "info.log")
	debugPath := filepath.Join(tempDir, "debug.log")

	infoLogger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{infoPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	infoLogger.Info("message without caller")

	debugLogger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{debugPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	debugLogger.Info("message with caller")

	info, _ := os.ReadFile(infoPath)
	if strings.Contains(string(info), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", info)
	}
	debug, _ := os.ReadFile(debugPath)
	if !strings.Contains(string(debug), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", debug)
	}
}

func TestConsoleLoggerLiftsComponentAndKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	base, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithWorkerID(context.Background(), "w-1")
	ctx = logging.WithBusinessKey(ctx, "bid-9")
	logger := logging.WithContext(ctx, logging.NewComponentLogger(base, "worker"))
	logger.Info("fetched", logging.Int("bytes", 42))

	out, _ := os.ReadFile(path)
	line := string(out)
	if !strings.Contains(line, "INFO worker [w-1 bid-9]: fetched") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, "bytes=42") {
		t.Fatalf("missing attr in %q", line)
	}
}

func TestConsoleLoggerPutsHintLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Warn("fetch failed",
		logging.Hint("check the detail URL"),
		logging.Int("status", 404),
		logging.ItemID(7),
	)

	out, _ := os.ReadFile(path)
	line := strings.TrimSpace(string(out))
	if !strings.HasSuffix(line, `status=404 item_id=7 error_hint="check the detail URL"`) {
		t.Fatalf("unexpected console line %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWarnWithContextInjectsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "publish failed", "producer_publish_failed")

	out, _ := os.ReadFile(path)
	var record map[string]any
	if err := json.Unmarshal(out, &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record[logging.FieldEventType] != "producer_publish_failed" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
}
