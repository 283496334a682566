package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestColorOnlyForTerminals(t *testing.T) {
	if colorEnabled(&bytes.Buffer{}) {
		t.Fatal("buffers are not terminals")
	}
	file, err := os.Create(filepath.Join(t.TempDir(), "out.log"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Close()
	if colorEnabled(file) {
		t.Fatal("regular files are not terminals")
	}

	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false))
	logger.Error("fetch failed")
	if strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("unexpected escape codes in %q", buf.String())
	}
}

func TestColoredLevelKeepsLabel(t *testing.T) {
	var buf bytes.Buffer
	h := newPrettyHandler(&buf, new(slog.LevelVar), false).(*prettyHandler)
	h.color = true
	slog.New(h).WithGroup("g").Warn("queue stalled")

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "queue stalled") {
		t.Fatalf("unexpected line %q", out)
	}
	if !h.WithAttrs(nil).(*prettyHandler).color {
		t.Fatal("derived handlers must keep colour")
	}
}
