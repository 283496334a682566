package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenderq/internal/config"
)

var (
	// ErrClaimLost means the caller no longer owns the processing row it tried to update.
	ErrClaimLost = errors.New("claim lost")
	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// schemaVersion is the current schema version for both backends.
const schemaVersion = 1

// Store is the durable work store shared by the producer, workers, and sweep.
type Store interface {
	// Insert adds a discovered item in status new. An existing business key is
	// returned unchanged.
	Insert(ctx context.Context, item NewItem) (*Item, error)
	// Get returns the item for key, or nil when it does not exist.
	Get(ctx context.Context, businessKey string) (*Item, error)
	// List returns items ordered by id, optionally filtered by status.
	List(ctx context.Context, statuses ...Status) ([]*Item, error)
	// Stats counts items per status.
	Stats(ctx context.Context) (map[Status]int, error)

	// SelectAndMarkQueued moves up to batchSize new or retryable failed items
	// to queued in one transaction and returns them. Concurrent producers
	// receive disjoint batches.
	SelectAndMarkQueued(ctx context.Context, batchSize int) ([]*Item, error)
	// RevertToNew returns queued items to new after a failed publish.
	RevertToNew(ctx context.Context, ids []int64) (int64, error)

	// Claim atomically takes ownership of a claimable item and increments its
	// attempts. It returns nil when the item is not claimable.
	Claim(ctx context.Context, businessKey, owner string) (*Item, error)
	// Heartbeat refreshes the liveness timestamp of an owned processing item.
	Heartbeat(ctx context.Context, businessKey, owner string) error
	// MarkDone records a successful result for an owned processing item.
	MarkDone(ctx context.Context, businessKey, owner string, result Result) error
	// MarkFailed records a failure for an owned processing item and reports
	// whether it has now exhausted maxAttempts.
	MarkFailed(ctx context.Context, businessKey, owner, reason string, maxAttempts int) (bool, error)

	// ReclaimStale fails processing items whose last sign of life is older than cutoff.
	ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error)
	// RequeueStranded returns queued items published before cutoff to new.
	RequeueStranded(ctx context.Context, cutoff time.Time) (int64, error)
	// RetryExhausted makes exhausted items eligible again. With no keys every
	// exhausted item is reset.
	RetryExhausted(ctx context.Context, businessKeys ...string) (int64, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Describe names the backend and location for diagnostics.
	Describe() string
	Close() error
}

// Open connects to the store selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg == nil {
		return nil, errors.New("store: config is nil")
	}
	switch cfg.Store.Driver {
	case config.DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.Store.DatabaseURL, int32(cfg.Store.MaxConns))
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Store.Driver)
	}
}

func validateNewItem(item NewItem) (NewItem, error) {
	item.BusinessKey = strings.TrimSpace(item.BusinessKey)
	item.ResourceLocator = strings.TrimSpace(item.ResourceLocator)
	if item.BusinessKey == "" {
		return item, errors.New("business key is required")
	}
	if item.ResourceLocator == "" {
		return item, errors.New("resource locator is required")
	}
	return item, nil
}

// claimableStatuses may be claimed by a worker when the item is not exhausted.
var claimableStatuses = []Status{StatusNew, StatusQueued, StatusFailed}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
