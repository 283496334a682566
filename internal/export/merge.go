package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
)

// MergeReport counts the result documents one merge read.
type MergeReport struct {
	Merged  int
	Skipped int
}

// MergeResults collects every result document in dir into a single JSON
// object at dest, keyed by file name without the .json extension. Hidden
// files and documents that are not valid JSON are skipped.
func MergeResults(dir, dest string, logger *slog.Logger) (MergeReport, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	var report MergeReport

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return report, fmt.Errorf("read results: %w", err)
	}

	merged := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil && !json.Valid(data) {
			err = errors.New("not a JSON document")
		}
		if err != nil {
			report.Skipped++
			logging.WarnWithContext(logger, "result document skipped", "merge_skipped",
				logging.String("path", path),
				logging.Error(err),
				logging.Hint("re-run the item with tenderq retry"),
			)
			continue
		}
		merged[strings.TrimSuffix(name, ".json")] = json.RawMessage(data)
		report.Merged++
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return report, fmt.Errorf("encode merged results: %w", err)
	}
	if err := fileutil.WriteAtomic(dest, append(data, '\n'), 0o644); err != nil {
		return report, fmt.Errorf("write merged results: %w", err)
	}
	logger.Info("results merged",
		logging.String("path", dest),
		logging.Int("merged", report.Merged),
		logging.Int("skipped", report.Skipped),
	)
	return report, nil
}
