// Package export writes work store items and their extracted bid fields to
// an XLSX workbook, and merges result documents into one JSON file.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"tenderq/internal/logging"
	"tenderq/internal/store"
	"tenderq/internal/transform"
)

// SheetName is the worksheet holding exported bids.
const SheetName = "Bids"

var headers = []string{
	"Bid Number",
	"Status",
	"Attempts",
	"Confidence",
	"Buyer",
	"Item Description",
	"Total Quantity",
	"Unit",
	"EMD Amount",
	"ePBG Required",
	"Estimated Value",
	"Consignee",
	"Bid End",
	"Result Path",
	"Error",
}

// WriteXLSX writes every item matching statuses (all items when none are
// given) to w and returns the number of rows written.
func WriteXLSX(ctx context.Context, s store.Store, w io.Writer, logger *slog.Logger, statuses ...store.Status) (int, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	start := time.Now()

	items, err := s.List(ctx, statuses...)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	for i, item := range items {
		row, err := itemRow(item)
		if err != nil {
			return 0, err
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return 0, fmt.Errorf("write row for %s: %w", item.BusinessKey, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 24)
	_ = f.SetColWidth(SheetName, "E", "F", 36)
	_ = f.SetColWidth(SheetName, "N", "O", 48)

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}

	logger.Info("items exported",
		logging.EventType("export_complete"),
		logging.Int("rows", len(items)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return len(items), nil
}

func itemRow(item *store.Item) ([]any, error) {
	var fields transform.Fields
	if item.FieldsJSON != "" {
		if err := json.Unmarshal([]byte(item.FieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("decode fields for %s: %w", item.BusinessKey, err)
		}
	}

	status := string(item.Status)
	if item.Exhausted {
		status += " (exhausted)"
	}
	var confidence any = ""
	if item.Status == store.StatusDone {
		confidence = item.Confidence
	}
	epbg := ""
	if item.FieldsJSON != "" {
		epbg = "no"
		if fields.EPBGRequired {
			epbg = "yes"
		}
	}

	return []any{
		item.BusinessKey,
		status,
		item.Attempts,
		confidence,
		deref(fields.Buyer),
		deref(fields.ItemDescription),
		deref(fields.TotalQuantity),
		deref(fields.Unit),
		deref(fields.EMDAmount),
		epbg,
		deref(fields.EstimatedValue),
		deref(fields.Consignee),
		deref(fields.BidEnd),
		item.ResultLocator,
		item.ErrorReason,
	}, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
