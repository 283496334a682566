package main

import (
	"fmt"
	"strings"
	"time"

	"tenderq/internal/store"
)

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatConfidence(item *store.Item) string {
	if item.Status != store.StatusDone {
		return "-"
	}
	return fmt.Sprintf("%.2f", item.Confidence)
}

func displayStatus(item *store.Item) string {
	if item.Exhausted {
		return string(item.Status) + " (exhausted)"
	}
	return string(item.Status)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len([]rune(value)) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}

func parseStatusFilters(values []string) ([]store.Status, error) {
	var statuses []store.Status
	for _, raw := range values {
		for part := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := store.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", strings.TrimSpace(part))
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
