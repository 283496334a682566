package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"tenderq/internal/store"
	"tenderq/internal/testsupport"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	return rows
}

func TestWriteXLSXIncludesFields(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	testsupport.SeedItem(t, s, "GEM/2025/B/1", "https://example.test/1")
	testsupport.SeedItem(t, s, "GEM/2025/B/2", "https://example.test/2")
	if _, err := s.Claim(ctx, "GEM/2025/B/1", "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	err := s.MarkDone(ctx, "GEM/2025/B/1", "w1", store.Result{
		ResultLocator: "/out/bid_GEM_2025_B_1.json",
		Confidence:    0.8,
		FieldsJSON:    `{"buyer":"Ministry of Railways","unit":"Nos","epbg_required":true}`,
	})
	if err != nil {
		t.Fatalf("mark done: %v", err)
	}

	var buf bytes.Buffer
	n, err := WriteXLSX(ctx, s, &buf, nil)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	rows := readRows(t, buf.Bytes())
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Bid Number" || rows[0][len(headers)-1] != "Error" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	done := rows[1]
	if done[0] != "GEM/2025/B/1" || done[1] != "done" || done[4] != "Ministry of Railways" || done[7] != "Nos" || done[9] != "yes" {
		t.Fatalf("unexpected done row: %v", done)
	}
	if done[13] != "/out/bid_GEM_2025_B_1.json" {
		t.Fatalf("expected result path, got %v", done)
	}
	if rows[2][1] != "new" {
		t.Fatalf("unexpected second row: %v", rows[2])
	}
}

func TestWriteXLSXFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItems(t, s, "bid", "https://example.test/doc", 3)

	var buf bytes.Buffer
	n, err := WriteXLSX(ctx, s, &buf, nil, store.StatusDone)
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no done rows, got %d", n)
	}
	if rows := readRows(t, buf.Bytes()); len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}
