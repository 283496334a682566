package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tenderq/internal/daemon"
	"tenderq/internal/export"
	"tenderq/internal/fetch"
	"tenderq/internal/logging"
	"tenderq/internal/notifications"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/transform"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var untilDrained bool
	var noMerge bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the producer, workers, and sweeper in the foreground",
		Long: "Run the producer, workers, and sweeper in one process. With --until-drained it\n" +
			"stops once nothing is left to process and merges the result documents.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("run")
			if err != nil {
				return err
			}
			recorder, err := ctx.recorder(logger)
			if err != nil {
				return err
			}

			runCfg := *cfg
			if workers > 0 {
				runCfg.Worker.Concurrency = workers
			} else {
				runCfg.Worker.Concurrency = cfg.Run.Workers
			}

			s, err := store.Open(cmd.Context(), &runCfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			t, err := ctx.openTransport(cmd.Context(), runCfg.Worker.ID, s)
			if err != nil {
				_ = s.Close()
				return err
			}

			transformer := transform.NewFromConfig(&runCfg, logger)
			if !transformer.SupportsPDF() {
				logging.WarnWithContext(logger, "pdftotext not found; PDF documents will fail to transform", "dependency_missing",
					logging.String("binary", runCfg.Transform.PDFToText),
					logging.Hint("install poppler-utils or set transform.pdftotext"),
				)
			}
			d, err := daemon.New(&runCfg, daemon.Components{
				Store:       s,
				Transport:   t,
				Fetcher:     fetch.NewFromConfig(&runCfg, logger),
				Transformer: transformer,
				Recorder:    recorder,
				Notifier:    notifications.NewService(&runCfg),
			}, logger)
			if err != nil {
				_ = t.Close()
				_ = s.Close()
				return err
			}
			defer d.Close()

			if err := d.Start(cmd.Context()); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return fmt.Errorf("%w (stop tenderqd before using tenderq run)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running %d worker(s) on %s\n", runCfg.Worker.Concurrency, t.Describe())
			if !untilDrained {
				select {
				case <-cmd.Context().Done():
				case <-d.Done():
				}
				d.Stop()
				return d.Err()
			}

			if err := d.WaitDrained(cmd.Context(), daemon.DrainOptionsFromConfig(&runCfg)); err != nil {
				return fmt.Errorf("wait for drain: %w", err)
			}
			d.Stop()
			fmt.Fprintln(out, "Queue drained")

			if noMerge {
				return nil
			}
			report, err := export.MergeResults(runCfg.Paths.OutputDir, runCfg.Paths.MergedPath, logger)
			if err != nil {
				recorder.PushRecent(status.Event{Status: "merge_failed", Message: err.Error()})
				return err
			}
			message := fmt.Sprintf("merged %d result(s) into %s", report.Merged, runCfg.Paths.MergedPath)
			recorder.PushRecent(status.Event{Status: "merge_done", Message: message})
			recorder.Snapshot(status.Snapshot{Stage: "done", Message: message})
			fmt.Fprintf(out, "Merged %d result(s) into %s\n", report.Merged, runCfg.Paths.MergedPath)
			if report.Skipped > 0 {
				fmt.Fprintf(out, "Skipped %d unreadable result(s)\n", report.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Number of workers (defaults to run.workers)")
	cmd.Flags().BoolVar(&untilDrained, "until-drained", false, "Stop once the queue is empty and nothing is processing")
	cmd.Flags().BoolVar(&noMerge, "no-merge", false, "Skip merging result documents after draining")
	return cmd
}

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge result documents into one JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dest := cfg.Paths.MergedPath
			if output != "" {
				dest = output
			}
			report, err := export.MergeResults(cfg.Paths.OutputDir, dest, logging.NewNop())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d result(s) into %s\n", report.Merged, dest)
			if report.Skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Skipped %d unreadable result(s)\n", report.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (defaults to paths.merged_path)")
	return cmd
}
