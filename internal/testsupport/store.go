package testsupport

import (
	"context"
	"fmt"
	"testing"

	"tenderq/internal/config"
	"tenderq/internal/store"
)

// MustOpenStore opens the SQLite work store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLite {
	t.Helper()

	s, err := store.OpenSQLite(context.Background(), cfg.Store.SQLitePath)
	if err != nil {
		t.Fatalf("store.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// SeedItem inserts a new item whose locator points at a local text document.
func SeedItem(t testing.TB, s store.Store, key, locator string) *store.Item {
	t.Helper()

	item, err := s.Insert(context.Background(), store.NewItem{BusinessKey: key, ResourceLocator: locator})
	if err != nil {
		t.Fatalf("insert %s: %v", key, err)
	}
	return item
}

// SeedItems inserts n items named <prefix>-<i>, all pointing at locator.
func SeedItems(t testing.TB, s store.Store, prefix, locator string, n int) []*store.Item {
	t.Helper()

	items := make([]*store.Item, 0, n)
	for i := range n {
		items = append(items, SeedItem(t, s, fmt.Sprintf("%s-%d", prefix, i), locator))
	}
	return items
}
