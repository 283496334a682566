package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a work item.
type Status string

const (
	StatusNew        Status = "new"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusNew,
	StatusQueued,
	StatusProcessing,
	StatusDone,
	StatusFailed,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Reasons recorded by transitions that are not driven by a worker.
const (
	StaleClaimReason = "stale claim reclaimed"
)

// Item is one bid record tracked by the work store.
type Item struct {
	ID              int64
	BusinessKey     string
	ResourceLocator string
	Page            int
	Status          Status
	LockOwner       string
	Attempts        int
	// Exhausted marks a failed item that used up its attempts.
	Exhausted     bool
	ClaimedAt     *time.Time
	LastHeartbeat *time.Time
	QueuedAt      *time.Time
	ResultLocator string
	ErrorReason   string
	Confidence    float64
	FieldsJSON    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Retryable reports whether the producer may publish the item again.
func (i *Item) Retryable() bool {
	if i == nil {
		return false
	}
	return i.Status == StatusNew || (i.Status == StatusFailed && !i.Exhausted)
}

// NewItem describes a record handed to the store by discovery.
type NewItem struct {
	BusinessKey     string
	ResourceLocator string
	Page            int
}

// Result is what a successful worker persists on done.
type Result struct {
	ResultLocator string
	Confidence    float64
	FieldsJSON    string
}
