package store

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// SelectAndMarkQueued moves a batch of publishable items to queued. The
// immediate transaction holds the write lock, so concurrent producers see
// disjoint batches.
func (s *SQLite) SelectAndMarkQueued(ctx context.Context, batchSize int) ([]*Item, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	ctx = ensureContext(ctx)
	now := formatSQLiteTime(time.Now())

	var items []*Item
	err := retryOnBusy(ctx, func() error {
		items = items[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`UPDATE work_items
			 SET status = ?, queued_at = ?, updated_at = ?
			 WHERE id IN (
			     SELECT id FROM work_items
			     WHERE status = ? OR (status = ? AND exhausted = 0)
			     ORDER BY id
			     LIMIT ?
			 )
			 RETURNING `+itemColumns,
			StatusQueued, now, now, StatusNew, StatusFailed, batchSize,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			item, err := scanSQLiteItem(rows)
			if err != nil {
				_ = rows.Close()
				return err
			}
			items = append(items, item)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("select and mark queued: %w", err)
	}
	slices.SortFunc(items, func(a, b *Item) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

// RevertToNew returns queued items to new.
func (s *SQLite) RevertToNew(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusNew, formatSQLiteTime(time.Now()), StatusQueued)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items SET status = ?, queued_at = NULL, updated_at = ?
		 WHERE status = ? AND id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("revert to new: %w", err)
	}
	return res.RowsAffected()
}

// Claim takes ownership of a claimable item. A nil item means another worker
// owns it, it already finished, or it exhausted its attempts.
func (s *SQLite) Claim(ctx context.Context, businessKey, owner string) (*Item, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, errors.New("claim owner is required")
	}
	ctx = ensureContext(ctx)
	now := formatSQLiteTime(time.Now())
	var item *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE work_items
			 SET status = ?, lock_owner = ?, attempts = attempts + 1,
			     claimed_at = ?, last_heartbeat = ?, updated_at = ?
			 WHERE business_key = ? AND status IN (?, ?, ?) AND exhausted = 0
			 RETURNING `+itemColumns,
			StatusProcessing, owner, now, now, now,
			businessKey, claimableStatuses[0], claimableStatuses[1], claimableStatuses[2],
		)
		var scanErr error
		item, scanErr = scanSQLiteItem(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	return item, nil
}

// Heartbeat refreshes last_heartbeat for an owned processing item.
func (s *SQLite) Heartbeat(ctx context.Context, businessKey, owner string) error {
	now := formatSQLiteTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items SET last_heartbeat = ?, updated_at = ?
		 WHERE business_key = ? AND status = ? AND lock_owner = ?`,
		now, now, businessKey, StatusProcessing, owner,
	)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return requireOwnedRow(res)
}

// MarkDone records the result of a successful run.
func (s *SQLite) MarkDone(ctx context.Context, businessKey, owner string, result Result) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items
		 SET status = ?, lock_owner = NULL, result_locator = ?, confidence = ?,
		     fields_json = ?, error_reason = NULL, updated_at = ?
		 WHERE business_key = ? AND status = ? AND lock_owner = ?`,
		StatusDone, nullableString(result.ResultLocator), result.Confidence,
		nullableString(result.FieldsJSON), formatSQLiteTime(time.Now()),
		businessKey, StatusProcessing, owner,
	)
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return requireOwnedRow(res)
}

// MarkFailed records a failed attempt and reports whether the item is now exhausted.
func (s *SQLite) MarkFailed(ctx context.Context, businessKey, owner, reason string, maxAttempts int) (bool, error) {
	ctx = ensureContext(ctx)
	var exhausted int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`UPDATE work_items
			 SET status = ?, lock_owner = NULL, error_reason = ?,
			     exhausted = CASE WHEN ? > 0 AND attempts >= ? THEN 1 ELSE 0 END,
			     updated_at = ?
			 WHERE business_key = ? AND status = ? AND lock_owner = ?
			 RETURNING exhausted`,
			StatusFailed, reason, maxAttempts, maxAttempts, formatSQLiteTime(time.Now()),
			businessKey, StatusProcessing, owner,
		).Scan(&exhausted)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrClaimLost
	}
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return exhausted != 0, nil
}

// ReclaimStale fails processing items that stopped heartbeating before cutoff.
func (s *SQLite) ReclaimStale(ctx context.Context, cutoff time.Time, maxAttempts int) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items
		 SET status = ?, lock_owner = NULL, error_reason = ?,
		     exhausted = CASE WHEN ? > 0 AND attempts >= ? THEN 1 ELSE 0 END,
		     updated_at = ?
		 WHERE status = ? AND COALESCE(last_heartbeat, claimed_at, updated_at) < ?`,
		StatusFailed, StaleClaimReason, maxAttempts, maxAttempts, formatSQLiteTime(time.Now()),
		StatusProcessing, formatSQLiteTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale: %w", err)
	}
	return res.RowsAffected()
}

// RequeueStranded returns queued items published before cutoff to new.
func (s *SQLite) RequeueStranded(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE work_items SET status = ?, queued_at = NULL, updated_at = ?
		 WHERE status = ? AND queued_at IS NOT NULL AND queued_at < ?`,
		StatusNew, formatSQLiteTime(time.Now()), StatusQueued, formatSQLiteTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stranded: %w", err)
	}
	return res.RowsAffected()
}

// RetryExhausted resets exhausted items to new. Attempts are preserved.
func (s *SQLite) RetryExhausted(ctx context.Context, businessKeys ...string) (int64, error) {
	query := `UPDATE work_items SET status = ?, exhausted = 0, updated_at = ?
		 WHERE status = ? AND exhausted = 1`
	args := []any{StatusNew, formatSQLiteTime(time.Now()), StatusFailed}
	if len(businessKeys) > 0 {
		query += ` AND business_key IN (` + makePlaceholders(len(businessKeys)) + `)`
		for _, key := range businessKeys {
			args = append(args, key)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry exhausted: %w", err)
	}
	return res.RowsAffected()
}

func requireOwnedRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrClaimLost
	}
	return nil
}
