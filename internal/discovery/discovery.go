// Package discovery turns bid listings into work store items.
//
// Listings are CSV files (business_key,resource_locator[,page] with an
// optional header) or XLSX workbooks whose first sheet carries a header row.
// Scraper column names such as "Bid Number" and "Detail URL" are accepted.
package discovery

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"tenderq/internal/logging"
	"tenderq/internal/store"
)

// ErrMissingColumn means a listing header lacks a key or locator column.
var ErrMissingColumn = errors.New("listing header must name a business key and a resource locator column")

type column int

const (
	columnUnknown column = iota
	columnKey
	columnLocator
	columnPage
)

var headerAliases = map[string]column{
	"business_key":     columnKey,
	"bid_number":       columnKey,
	"bid_no":           columnKey,
	"key":              columnKey,
	"resource_locator": columnLocator,
	"detail_url":       columnLocator,
	"details_url":      columnLocator,
	"url":              columnLocator,
	"locator":          columnLocator,
	"page":             columnPage,
}

func headerColumn(cell string) column {
	normalized := strings.ToLower(strings.TrimSpace(cell))
	normalized = strings.Join(strings.Fields(normalized), "_")
	return headerAliases[normalized]
}

type layout struct {
	key     int
	locator int
	page    int
}

var positional = layout{key: 0, locator: 1, page: 2}

func detectLayout(header []string) (layout, bool, error) {
	l := layout{key: -1, locator: -1, page: -1}
	recognized := false
	for i, cell := range header {
		switch headerColumn(cell) {
		case columnKey:
			if l.key < 0 {
				l.key = i
			}
			recognized = true
		case columnLocator:
			if l.locator < 0 {
				l.locator = i
			}
			recognized = true
		case columnPage:
			if l.page < 0 {
				l.page = i
			}
			recognized = true
		}
	}
	if !recognized {
		return positional, false, nil
	}
	if l.key < 0 || l.locator < 0 {
		return layout{}, true, ErrMissingColumn
	}
	return l, true, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

// fromRows converts table rows into items. requireHeader rejects listings
// whose first row is not a recognizable header.
func fromRows(rows [][]string, requireHeader bool) ([]store.NewItem, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	l, hasHeader, err := detectLayout(rows[0])
	if err != nil {
		return nil, err
	}
	if requireHeader && !hasHeader {
		return nil, ErrMissingColumn
	}
	start := 0
	if hasHeader {
		start = 1
	}

	items := make([]store.NewItem, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		line := i + 1
		if blank(row) {
			continue
		}
		item := store.NewItem{
			BusinessKey:     cell(row, l.key),
			ResourceLocator: cell(row, l.locator),
		}
		if item.BusinessKey == "" {
			return nil, fmt.Errorf("line %d: business key is empty", line)
		}
		if item.ResourceLocator == "" {
			return nil, fmt.Errorf("line %d: resource locator is empty for %s", line, item.BusinessKey)
		}
		if raw := cell(row, l.page); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil || page < 0 {
				return nil, fmt.Errorf("line %d: invalid page %q", line, raw)
			}
			item.Page = page
		}
		items = append(items, item)
	}
	return items, nil
}

// ReadCSV parses a CSV listing. The header row is optional; without one the
// columns are business_key, resource_locator and an optional page.
func ReadCSV(r io.Reader) ([]store.NewItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows, false)
}

// ReadXLSX parses the first sheet of a workbook. A header row is required.
func ReadXLSX(r io.Reader) ([]store.NewItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows, true)
}

// ReadFile parses a listing, choosing the format from the file extension.
func ReadFile(path string) ([]store.NewItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listing: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(file)
	}
	return ReadCSV(file)
}

// Report summarizes an import.
type Report struct {
	Inserted int
	Existing int
}

// Import inserts items that are not yet in the store. Known business keys are
// left untouched.
func Import(ctx context.Context, s store.Store, items []store.NewItem, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "discovery")

	var report Report
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		existing, err := s.Get(ctx, item.BusinessKey)
		if err != nil {
			return report, fmt.Errorf("lookup %s: %w", item.BusinessKey, err)
		}
		if existing != nil {
			report.Existing++
			continue
		}
		if _, err := s.Insert(ctx, item); err != nil {
			return report, fmt.Errorf("insert %s: %w", item.BusinessKey, err)
		}
		report.Inserted++
	}

	logger.Info("listing imported",
		logging.EventType("listing_imported"),
		logging.Int("inserted", report.Inserted),
		logging.Int("existing", report.Existing),
	)
	return report, nil
}
