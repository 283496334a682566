package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleBidText is a plain-text bid document that exercises every extracted field.
const SampleBidText = `Ministry of Railways
Bid Details
Bid No: GEM/2025/B/1234567
Bid End Date: 15-01-2025 18:00:00
Item: Laptop Computers with accessories
Total Quantity: 1,250
Unit: Nos
EMD Detail
Earnest Money Deposit Rs 50,000
ePBG Detail required
Estimated Value: Rs 12,00,000
Consignee: Northern Railway Stores Depot
Processor: Intel Core i7
Memory: 16 GB
`

// WriteDocument writes content to path, creating parent directories.
func WriteDocument(t testing.TB, path, content string) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}
