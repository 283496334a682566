package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tenderq/internal/discovery"
	"tenderq/internal/export"
	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
	"tenderq/internal/store"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "add <business-key> <resource-locator>",
		Short: "Register a bid record for processing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				existing, err := s.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				item, err := s.Insert(cmd.Context(), store.NewItem{
					BusinessKey:     args[0],
					ResourceLocator: args[1],
					Page:            page,
				})
				if err != nil {
					return fmt.Errorf("add item: %w", err)
				}
				out := cmd.OutOrStdout()
				if existing != nil {
					fmt.Fprintf(out, "Item %s already exists (status %s)\n", item.BusinessKey, displayStatus(item))
					return nil
				}
				fmt.Fprintf(out, "Added %s (id %d)\n", item.BusinessKey, item.ID)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "Listing page the record was discovered on")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv|file.xlsx|->",
		Short: "Register bid records from a CSV or XLSX listing",
		Long: "Import reads business_key,resource_locator[,page] rows. A header row is optional for CSV\n" +
			"and required for XLSX; scraper headers such as \"Bid Number\" and \"Detail URL\" are recognized.\n" +
			"Use - to read CSV from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				items []store.NewItem
				err   error
			)
			if args[0] == "-" {
				items, err = discovery.ReadCSV(cmd.InOrStdin())
			} else {
				items, err = discovery.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				report, err := discovery.Import(cmd.Context(), s, items, logging.NewNop())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d new item(s); %d already known\n", report.Inserted, report.Existing)
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				items, err := s.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.BusinessKey,
						displayStatus(item),
						strconv.Itoa(item.Attempts),
						valueOrDash(item.LockOwner),
						formatConfidence(item),
						truncate(valueOrDash(item.ErrorReason), 48),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					numCol("ID"), col("Business Key"), col("Status"), numCol("Attempts"),
					col("Owner"), numCol("Confidence"), col("Error"),
				}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (new, queued, processing, done, failed)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <business-key>",
		Short: "Show one item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				item, err := s.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %s not found", args[0])
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeItemJSON(out, item)
				}
				renderItem(out, item, shouldColorize(out))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the item as JSON")
	return cmd
}

func renderItem(out io.Writer, item *store.Item, colorize bool) {
	for _, line := range renderSectionHeader(item.BusinessKey, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", itemStatusKind(item), displayStatus(item), colorize))
	lines := [][2]string{
		{"ID", strconv.FormatInt(item.ID, 10)},
		{"Locator", item.ResourceLocator},
		{"Page", strconv.Itoa(item.Page)},
		{"Attempts", strconv.Itoa(item.Attempts)},
		{"Exhausted", yesNo(item.Exhausted)},
		{"Owner", valueOrDash(item.LockOwner)},
		{"Queued", formatTime(item.QueuedAt)},
		{"Claimed", formatTime(item.ClaimedAt)},
		{"Heartbeat", formatTime(item.LastHeartbeat)},
		{"Result", valueOrDash(item.ResultLocator)},
		{"Confidence", formatConfidence(item)},
		{"Error", valueOrDash(item.ErrorReason)},
		{"Updated", formatTime(&item.UpdatedAt)},
	}
	for _, kv := range lines {
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, kv[0]+":", kv[1])
	}
	if item.FieldsJSON != "" {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Fields", colorize) {
			fmt.Fprintln(out, line)
		}
		var pretty map[string]any
		if err := json.Unmarshal([]byte(item.FieldsJSON), &pretty); err == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Fprintln(out, string(data))
		} else {
			fmt.Fprintln(out, item.FieldsJSON)
		}
	}
}

func writeItemJSON(out io.Writer, item *store.Item) error {
	payload := map[string]any{
		"id":               item.ID,
		"business_key":     item.BusinessKey,
		"resource_locator": item.ResourceLocator,
		"page":             item.Page,
		"status":           item.Status,
		"exhausted":        item.Exhausted,
		"attempts":         item.Attempts,
		"lock_owner":       item.LockOwner,
		"claimed_at":       item.ClaimedAt,
		"last_heartbeat":   item.LastHeartbeat,
		"queued_at":        item.QueuedAt,
		"result_locator":   item.ResultLocator,
		"error_reason":     item.ErrorReason,
		"confidence":       item.Confidence,
		"created_at":       item.CreatedAt,
		"updated_at":       item.UpdatedAt,
	}
	if item.FieldsJSON != "" {
		payload["fields"] = json.RawMessage(item.FieldsJSON)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [business-key...]",
		Short: "Make exhausted items eligible for processing again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass business keys or --all, not both")
			}
			if !all && len(args) == 0 {
				return errors.New("pass at least one business key or --all")
			}
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				n, err := s.RetryExhausted(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d exhausted item(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reset every exhausted item")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "export <file.xlsx>",
		Short: "Export items and extracted fields to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				var buf bytes.Buffer
				n, err := export.WriteXLSX(cmd.Context(), s, &buf, logging.NewNop(), statuses...)
				if err != nil {
					return err
				}
				if err := fileutil.WriteAtomic(target, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d item(s) to %s\n", n, target)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status")
	return cmd
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
