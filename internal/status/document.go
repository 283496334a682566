package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Counter names an integer field of the aggregate document.
type Counter string

const (
	CounterEnqueued      Counter = "enqueued"
	CounterProcessed     Counter = "processed"
	CounterDone          Counter = "done"
	CounterFailed        Counter = "failed"
	CounterInProgress    Counter = "in_progress"
	CounterSwept         Counter = "swept"
	CounterWorkersActive Counter = "workers_active"
)

// Event is one entry of the recent activity list.
type Event struct {
	Timestamp   time.Time `json:"ts"`
	BusinessKey string    `json:"business_key"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Worker      string    `json:"worker,omitempty"`
}

// Document is the persisted aggregate status.
type Document struct {
	Enqueued      int64     `json:"enqueued"`
	Processed     int64     `json:"processed"`
	Done          int64     `json:"done"`
	Failed        int64     `json:"failed"`
	InProgress    int64     `json:"in_progress"`
	Swept         int64     `json:"swept"`
	QueueLength   int64     `json:"queue_length"`
	WorkersActive int64     `json:"workers_active"`
	Message       string    `json:"message,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	Recent        []Event   `json:"recent"`
}

// Snapshot overwrites point-in-time fields. Nil or empty fields are left unchanged.
type Snapshot struct {
	QueueLength *int64
	Message     string
	Stage       string
}

// QueueLength builds a snapshot that records the current transport depth.
func QueueLength(n int64) Snapshot {
	return Snapshot{QueueLength: &n}
}

func (d *Document) increment(counter Counter, delta int64) {
	switch counter {
	case CounterEnqueued:
		d.Enqueued += delta
	case CounterProcessed:
		d.Processed += delta
	case CounterDone:
		d.Done += delta
	case CounterFailed:
		d.Failed += delta
	case CounterInProgress:
		d.InProgress = max(0, d.InProgress+delta)
	case CounterSwept:
		d.Swept += delta
	case CounterWorkersActive:
		d.WorkersActive = max(0, d.WorkersActive+delta)
	}
}

func (d *Document) apply(snap Snapshot) {
	if snap.QueueLength != nil {
		d.QueueLength = *snap.QueueLength
	}
	if snap.Message != "" {
		d.Message = snap.Message
	}
	if snap.Stage != "" {
		d.Stage = snap.Stage
	}
}

// pushRecent prepends event and trims the list to limit entries.
func (d *Document) pushRecent(event Event, limit int) {
	d.Recent = append([]Event{event}, d.Recent...)
	if limit > 0 && len(d.Recent) > limit {
		d.Recent = d.Recent[:limit]
	}
}

// Read loads the document at path. A missing file yields an empty document.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	var doc Document
	if len(data) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &doc, nil
}
