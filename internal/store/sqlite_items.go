package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Insert adds a new item or returns the existing row for the same business key.
func (s *SQLite) Insert(ctx context.Context, item NewItem) (*Item, error) {
	item, err := validateNewItem(item)
	if err != nil {
		return nil, err
	}
	now := formatSQLiteTime(time.Now())
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO work_items (business_key, resource_locator, page, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(business_key) DO NOTHING`,
		item.BusinessKey, item.ResourceLocator, item.Page, StatusNew, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return s.Get(ctx, item.BusinessKey)
}

// Get fetches an item by business key. It returns nil when no row exists.
func (s *SQLite) Get(ctx context.Context, businessKey string) (*Item, error) {
	ctx = ensureContext(ctx)
	var item *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE business_key = ?`, businessKey)
		var scanErr error
		item, scanErr = scanSQLiteItem(row)
		return scanErr
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items filtered by status. With no statuses all items are returned.
func (s *SQLite) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id`
	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Stats returns counts of items by status.
func (s *SQLite) Stats(ctx context.Context) (map[Status]int, error) {
	ctx = ensureContext(ctx)
	stats := make(map[Status]int)
	err := retryOnBusy(ctx, func() error {
		clear(stats)
		rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				return err
			}
			stats[Status(status)] = count
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("item stats: %w", err)
	}
	return stats, nil
}
