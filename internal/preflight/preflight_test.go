package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tenderq/internal/testsupport"
	"tenderq/internal/transport"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping(context.Context) error { return f.err }
func (f fakeStore) Describe() string           { return "fake-store" }

type fakeQueue struct {
	n   int64
	err error
}

func (f fakeQueue) Len(context.Context) (int64, error) { return f.n, f.err }
func (f fakeQueue) Describe() string                   { return "fake-queue" }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckStore(t *testing.T) {
	if r := CheckStore(context.Background(), fakeStore{}); !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	r := CheckStore(context.Background(), fakeStore{err: errors.New("connection refused")})
	if r.Passed {
		t.Fatal("expected failure for unreachable store")
	}
}

func TestCheckTransport(t *testing.T) {
	r := CheckTransport(context.Background(), fakeQueue{n: 7})
	if !r.Passed {
		t.Fatalf("expected pass, got: %s", r.Detail)
	}
	if r.Detail != "fake-queue (7 queued)" {
		t.Fatalf("unexpected detail %q", r.Detail)
	}
	if r := CheckTransport(context.Background(), fakeQueue{err: errors.New("down")}); r.Passed {
		t.Fatal("expected failure for unreachable transport")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, Targets{})
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_WithBackends(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transform.PDFToText = "clearly-not-present-pdftotext"
	s := testsupport.MustOpenStore(t, cfg)
	q := transport.NewMemory()

	results := RunAll(context.Background(), cfg, Targets{Store: s, Transport: q})
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}

	var sawPDFToText bool
	for _, r := range results {
		if r.Name == "pdftotext" {
			sawPDFToText = true
			if r.Passed || !r.Optional {
				t.Fatalf("expected optional failing pdftotext check, got %#v", r)
			}
		}
	}
	if !sawPDFToText {
		t.Fatal("expected pdftotext check in results")
	}
}

func TestRunAll_ReportsStoreFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg, Targets{Store: fakeStore{err: errors.New("down")}})
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Work store" {
		t.Fatalf("expected only the store check to fail, got %#v", failed)
	}
}

func TestCheckStatusDocumentCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := CheckStatusDocument(path)
	if r.Passed {
		t.Fatal("expected corrupt status document to fail")
	}
	if !r.Optional {
		t.Fatal("status document check should be optional")
	}
}
