package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"tenderq/internal/logging"
	"tenderq/internal/status"
	"tenderq/internal/store"
)

const recentRows = 15

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var reset bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aggregate counters, store totals, and recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if reset {
				file := status.NewFile(cfg.Status.Path, cfg.Status.RecentCap, logging.NewNop())
				if err := file.Remove(); err != nil {
					return fmt.Errorf("reset status: %w", err)
				}
				fmt.Fprintf(out, "Removed status document %s\n", cfg.Status.Path)
				return nil
			}

			doc, err := status.Read(cfg.Status.Path)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}

			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				stats, err := s.Stats(cmd.Context())
				if err != nil {
					return err
				}
				renderStatus(out, doc, stats, shouldColorize(out))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the status document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status document")
	return cmd
}

func renderStatus(out io.Writer, doc *status.Document, stats map[store.Status]int, colorize bool) {
	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(out, line)
	}
	stage := doc.Stage
	if stage == "" {
		stage = "idle"
	}
	fmt.Fprintln(out, renderStatusLine("Stage", statusInfo, stage, colorize))
	if doc.Message != "" {
		fmt.Fprintln(out, renderStatusLine("Message", statusInfo, doc.Message, colorize))
	}
	failedKind := statusOK
	if doc.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, strconv.FormatInt(doc.Failed, 10), colorize))
	updated := "never"
	if !doc.LastUpdated.IsZero() {
		updated = formatTime(&doc.LastUpdated)
	}
	fmt.Fprintln(out, renderStatusLine("Last updated", statusInfo, updated, colorize))
	fmt.Fprintln(out)

	counters := [][]string{
		{"enqueued", strconv.FormatInt(doc.Enqueued, 10)},
		{"processed", strconv.FormatInt(doc.Processed, 10)},
		{"done", strconv.FormatInt(doc.Done, 10)},
		{"failed", strconv.FormatInt(doc.Failed, 10)},
		{"in_progress", strconv.FormatInt(doc.InProgress, 10)},
		{"swept", strconv.FormatInt(doc.Swept, 10)},
		{"queue_length", strconv.FormatInt(doc.QueueLength, 10)},
		{"workers_active", strconv.FormatInt(doc.WorkersActive, 10)},
	}
	fmt.Fprintln(out, renderTable([]column{col("Counter"), numCol("Value")}, counters))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Work store", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := make([][]string, 0, len(stats))
	total := 0
	for _, st := range store.AllStatuses() {
		rows = append(rows, []string{string(st), strconv.Itoa(stats[st])})
		total += stats[st]
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})
	fmt.Fprintln(out, renderTable([]column{col("Status"), numCol("Items")}, rows))

	if len(doc.Recent) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Recent activity", colorize) {
		fmt.Fprintln(out, line)
	}
	recent := make([][]string, 0, recentRows)
	for i := len(doc.Recent) - 1; i >= 0 && len(recent) < recentRows; i-- {
		ev := doc.Recent[i]
		recent = append(recent, []string{
			formatTime(&ev.Timestamp),
			ev.BusinessKey,
			ev.Status,
			valueOrDash(ev.Worker),
			truncate(ev.Message, 60),
		})
	}
	fmt.Fprintln(out, renderTable([]column{col("Time"), col("Business Key"), col("State"), col("Worker"), col("Message")}, recent))
}
