package store

import (
	"database/sql"
	"strings"
	"time"
)

const itemColumns = "id, business_key, resource_locator, page, status, lock_owner, attempts, exhausted, claimed_at, last_heartbeat, queued_at, result_locator, error_reason, confidence, fields_json, created_at, updated_at"

// sqliteTimeLayout is fixed width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(raw sql.NullString) *time.Time {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, raw.String); err == nil {
			return &ts
		}
	}
	return nil
}

func scanSQLiteItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item          Item
		statusStr     string
		lockOwner     sql.NullString
		exhausted     int64
		claimedRaw    sql.NullString
		heartbeatRaw  sql.NullString
		queuedRaw     sql.NullString
		resultLocator sql.NullString
		errorReason   sql.NullString
		fieldsJSON    sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&item.ID,
		&item.BusinessKey,
		&item.ResourceLocator,
		&item.Page,
		&statusStr,
		&lockOwner,
		&item.Attempts,
		&exhausted,
		&claimedRaw,
		&heartbeatRaw,
		&queuedRaw,
		&resultLocator,
		&errorReason,
		&item.Confidence,
		&fieldsJSON,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item.Status = Status(statusStr)
	item.LockOwner = lockOwner.String
	item.Exhausted = exhausted != 0
	item.ClaimedAt = parseSQLiteTime(claimedRaw)
	item.LastHeartbeat = parseSQLiteTime(heartbeatRaw)
	item.QueuedAt = parseSQLiteTime(queuedRaw)
	item.ResultLocator = resultLocator.String
	item.ErrorReason = errorReason.String
	item.FieldsJSON = fieldsJSON.String
	if ts := parseSQLiteTime(createdRaw); ts != nil {
		item.CreatedAt = *ts
	}
	if ts := parseSQLiteTime(updatedRaw); ts != nil {
		item.UpdatedAt = *ts
	}
	return &item, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
