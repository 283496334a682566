package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tenderq/internal/fetch"
	"tenderq/internal/logging"
	"tenderq/internal/notifications"
	"tenderq/internal/producer"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/sweeper"
	"tenderq/internal/transform"
	"tenderq/internal/worker"
)

func newProducerCommand(ctx *commandContext) *cobra.Command {
	var once bool
	var batch int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "producer",
		Short: "Publish new and retryable items to the transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("producer")
			if err != nil {
				return err
			}
			recorder, err := ctx.recorder(logger)
			if err != nil {
				return err
			}

			opts := producer.OptionsFromConfig(cfg)
			if batch > 0 {
				opts.BatchSize = batch
			}
			if interval > 0 {
				opts.Interval = interval
			}

			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				t, err := ctx.openTransport(cmd.Context(), cfg.Worker.ID, s)
				if err != nil {
					return err
				}
				defer t.Close()

				p := producer.New(s, t, recorder, opts, logger)
				if once {
					n, err := p.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d item(s) to %s\n", n, t.Describe())
					return nil
				}
				recorder.Snapshot(status.Snapshot{Stage: "producing", Message: "producer running"})
				return p.Run(cmd.Context())
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Publish a single batch and exit")
	cmd.Flags().IntVar(&batch, "batch", 0, "Override producer.batch_size")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Override producer.interval_seconds")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var name string
	var concurrency int
	var sweep bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume tasks and process claimed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("worker")
			if err != nil {
				return err
			}
			recorder, err := ctx.recorder(logger)
			if err != nil {
				return err
			}

			opts := worker.OptionsFromConfig(cfg)
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				opts.ID = trimmed
			}
			if concurrency <= 0 {
				concurrency = cfg.Worker.Concurrency
			}

			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				t, err := ctx.openTransport(cmd.Context(), opts.ID, s)
				if err != nil {
					return err
				}
				defer t.Close()

				transformer := transform.NewFromConfig(cfg, logger)
				if !transformer.SupportsPDF() {
					logging.WarnWithContext(logger, "pdftotext not found; PDF documents will fail to transform", "dependency_missing",
						logging.String("binary", cfg.Transform.PDFToText),
						logging.Hint("install poppler-utils or set transform.pdftotext"),
					)
				}

				pool := worker.NewPool(worker.Dependencies{
					Store:       s,
					Transport:   t,
					Fetcher:     fetch.NewFromConfig(cfg, logger),
					Transformer: transformer,
					Recorder:    recorder,
					Notifier:    notifications.NewService(cfg),
					Logger:      logger,
				}, opts, concurrency)

				logger.Info("worker starting",
					logging.WorkerID(opts.ID),
					logging.Int("concurrency", concurrency),
					logging.String("transport", t.Describe()),
					logging.Bool("sweep", sweep),
				)

				g, gctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error { return pool.Run(gctx) })
				if sweep {
					sw := sweeper.New(s, recorder, sweeper.OptionsFromConfig(cfg), logger)
					g.Go(func() error { return sw.Run(gctx) })
				}
				return g.Wait()
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Worker identity (defaults to worker.id)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of concurrent workers (defaults to worker.concurrency)")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "Also run the stale-claim sweeper")
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim stale processing items",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger("sweep")
			if err != nil {
				return err
			}
			recorder, err := ctx.recorder(logger)
			if err != nil {
				return err
			}
			opts := sweeper.OptionsFromConfig(cfg)
			if opts.StaleAfter <= 0 {
				return errors.New("sweep.stale_after_seconds must be positive")
			}

			return ctx.withStore(cmd.Context(), func(s store.Store) error {
				sw := sweeper.New(s, recorder, opts, logger)
				if !once {
					return sw.Run(cmd.Context())
				}
				report, err := sw.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stale claim(s), requeued %d stranded item(s)\n", report.Reclaimed, report.Requeued)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep pass and exit")
	return cmd
}
