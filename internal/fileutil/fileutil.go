// Package fileutil writes documents so readers never observe a partial file.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic writes data to path through a temp file in the same directory,
// fsyncs it, and renames it over path. Repeated writes overwrite.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	_, err := WriteAtomicFrom(path, bytes.NewReader(data), perm)
	return err
}

// WriteAtomicFrom streams r into path with the same guarantees as WriteAtomic
// and returns the number of bytes written.
func WriteAtomicFrom(path string, r io.Reader, perm os.FileMode) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return written, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return written, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return written, fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return written, nil
}

// CopyFileVerified copies src to dst atomically with SHA256 + size integrity
// verification. dst is left untouched on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("source %s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	hasher := sha256.New()
	written, err := WriteAtomicFrom(dst, io.TeeReader(in, hasher), 0o644)
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}

	out, err := os.Open(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	dstHasher := sha256.New()
	if _, err := io.Copy(dstHasher, out); err != nil {
		return err
	}
	if !bytes.Equal(hasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

var unsafeNameChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "_")

// SafeName makes a business key usable as a single path component. Keys that
// had to be rewritten get a short hash of the original so that GEM/1 and
// GEM_1 do not share files.
func SafeName(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "_"
	}
	name := unsafeNameChars.Replace(key)
	if name == "." || name == ".." {
		name = "_"
	}
	if name == key {
		return name
	}
	sum := sha256.Sum256([]byte(key))
	return name + "_" + hex.EncodeToString(sum[:4])
}
