package preflight

import (
	"fmt"

	"tenderq/internal/status"
)

// CheckStatusDocument verifies the aggregate status document can be decoded.
// A missing document passes; it is created on the first update.
func CheckStatusDocument(path string) Result {
	const name = "Status document"

	doc, err := status.Read(path)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if doc.LastUpdated.IsZero() {
		return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s (not yet written)", path)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s (updated %s)", path, doc.LastUpdated.Format("2006-01-02 15:04:05"))}
}
