package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

func scanPostgresItem(row pgx.Row) (*Item, error) {
	var (
		item          Item
		statusStr     string
		lockOwner     *string
		resultLocator *string
		errorReason   *string
		fieldsJSON    *string
	)
	if err := row.Scan(
		&item.ID,
		&item.BusinessKey,
		&item.ResourceLocator,
		&item.Page,
		&statusStr,
		&lockOwner,
		&item.Attempts,
		&item.Exhausted,
		&item.ClaimedAt,
		&item.LastHeartbeat,
		&item.QueuedAt,
		&resultLocator,
		&errorReason,
		&item.Confidence,
		&fieldsJSON,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Status = Status(statusStr)
	item.LockOwner = deref(lockOwner)
	item.ResultLocator = deref(resultLocator)
	item.ErrorReason = deref(errorReason)
	item.FieldsJSON = deref(fieldsJSON)
	return &item, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func collectPostgresItems(rows pgx.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Insert adds a new item or returns the existing row for the same business key.
func (p *Postgres) Insert(ctx context.Context, item NewItem) (*Item, error) {
	item, err := validateNewItem(item)
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx,
		`INSERT INTO work_items (business_key, resource_locator, page, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (business_key) DO NOTHING`,
		item.BusinessKey, item.ResourceLocator, item.Page, string(StatusNew),
	); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return p.Get(ctx, item.BusinessKey)
}

// Get fetches an item by business key. It returns nil when no row exists.
func (p *Postgres) Get(ctx context.Context, businessKey string) (*Item, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM work_items WHERE business_key = $1`, businessKey)
	item, err := scanPostgresItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items filtered by status. With no statuses all items are returned.
func (p *Postgres) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statusStrings(statuses))
	}
	query += ` ORDER BY id`
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := collectPostgresItems(rows)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Stats returns counts of items by status.
func (p *Postgres) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := p.pool.Query(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("item stats: %w", err)
		}
		stats[Status(status)] = int(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	return stats, nil
}

// SelectAndMarkQueued locks a batch of publishable rows with SKIP LOCKED so
// concurrent producers never select the same row, then marks them queued.
func (p *Postgres) SelectAndMarkQueued(ctx context.Context, batchSize int) ([]*Item, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	var items []*Item
	err := p.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`WITH picked AS (
			     SELECT id FROM work_items
			     WHERE status = $1 OR (status = $2 AND NOT exhausted)
			     ORDER BY id
			     LIMIT $3
			     FOR UPDATE SKIP LOCKED
			 )
			 UPDATE work_items w
			 SET status = $4, queued_at = NOW(), updated_at = NOW()
			 FROM picked
			 WHERE w.id = picked.id
			 RETURNING `+qualifiedColumns("w"),
			string(StatusNew), string(StatusFailed), batchSize, string(StatusQueued),
		)
		if err != nil {
			return err
		}
		items, err = collectPostgresItems(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("select and mark queued: %w", err)
	}
	slices.SortFunc(items, func(a, b *Item) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

func qualifiedColumns(alias string) string {
	cols := strings.Split(itemColumns, ", ")
	for i, col := range cols {
		cols[i] = alias + "." + col
	}
	return strings.Join(cols, ", ")
}

// RevertToNew returns queued items to new.
func (p *Postgres) RevertToNew(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE work_items SET status = $1, queued_at = NULL, updated_at = NOW()
		 WHERE status = $2 AND id = ANY($3)`,
		string(StatusNew), string(StatusQueued), ids,
	)
	if err != nil {
		return 0, fmt.Errorf("revert to new: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Claim takes ownership of a claimable item. A nil item means another worker
// owns it, it already finished, or it exhausted its attempts.
func (p *Postgres) Claim(ctx context.Context, businessKey, owner string) (*Item, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, errors.New("claim owner is required")
	}
	row := p.pool.QueryRow(ctx,
		`UPDATE work_items
		 SET status = $1, lock_owner = $2, attempts = attempts + 1,
		     claimed_at = NOW(), last_heartbeat = NOW(), updated_at = NOW()
		 WHERE business_key = $3 AND status = ANY($4) AND NOT exhausted
		 RETURNING `+itemColumns,
		string(StatusProcessing), owner, businessKey, statusStrings(claimableStatuses),
	)
	item, err := scanPostgresItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	return item, nil
}

// Heartbeat refreshes last_heartbeat for an owned processing item.
func (p *Postgres) Heartbeat(ctx context.Context, businessKey, owner string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE work_items SET last_heartbeat = NOW(), updated_at = NOW()
		 WHERE business_key = $1 AND status = $2 AND lock_owner = $3`,
		businessKey, string(StatusProcessing), owner,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkDone records the result of a successful run.
func (p *Postgres) MarkDone(ctx context.Context, businessKey, owner string, result Result) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE work_items
		 SET status = $1, lock_owner = NULL, result_locator = $2, confidence = $3,
		     fields_json = $4, error_reason = NULL, updated_at = NOW()
		 WHERE business_key = $5 AND status = $6 AND lock_owner = $7`,
		string(StatusDone), nullableString(result.ResultLocator), result.Confidence,
		nullableString(result.FieldsJSON), businessKey, string(StatusProcessing), owner,
	)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// MarkFailed records a failed attempt and reports whether the item is now exhausted.
func (p *Postgres) MarkFailed(ctx context.Context, businessKey, owner, reason string, maxAttempts int) (bool, error) {
	var exhausted bool
	err := p.pool.QueryRow(ctx,
		`UPDATE work_items
		 SET status = $1, lock_owner = NULL, error_reason = $2,
		     exhausted = ($3::int > 0 AND attempts >= $3::int), updated_at = NOW()
		 WHERE business_key = $4 AND status = $5 AND lock_owner = $6
		 RETURNING exhausted`,
		string(StatusFailed), reason, maxAttempts, businessKey, string(StatusProcessing), owner,
	).Scan(&exhausted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrClaimLost
	}
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return exhausted, nil
}

// ReclaimStale fails processing items that stopped heartbeating before cutoff.
func (p *Postgres) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE work_items
		 SET status = $1, lock_owner = NULL, error_reason = $2,
		     exhausted = ($3::int > 0 AND attempts >= $3::int), updated_at = NOW()
		 WHERE status = $4 AND COALESCE(last_heartbeat, claimed_at, updated_at) < $5`,
		string(StatusFailed), StaleClaimReason, maxAttempts, string(StatusProcessing), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RequeueStranded returns queued items published before cutoff to new.
func (p *Postgres) RequeueStranded(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE work_items SET status = $1, queued_at = NULL, updated_at = NOW()
		 WHERE status = $2 AND queued_at < $3`,
		string(StatusNew), string(StatusQueued), cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stranded: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RetryExhausted resets exhausted items to new. Attempts are preserved.
func (p *Postgres) RetryExhausted(ctx context.Context, businessKeys ...string) (int64, error) {
	query := `UPDATE work_items SET status = $1, exhausted = FALSE, updated_at = NOW()
		 WHERE status = $2 AND exhausted`
	args := []any{string(StatusNew), string(StatusFailed)}
	if len(businessKeys) > 0 {
		query += ` AND business_key = ANY($3)`
		args = append(args, businessKeys)
	}
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry exhausted: %w", err)
	}
	return tag.RowsAffected(), nil
}
