// Package sweeper recovers work items abandoned by crashed workers and
// producers.
//
// Processing rows whose owner stopped heartbeating are failed with the
// "stale claim reclaimed" reason so the producer can retry them; queued rows
// that never reached a worker are returned to new.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/logging"
	"tenderq/internal/status"
	"tenderq/internal/store"
)

// SweepEventKey is the business key recorded on sweep recent events.
const SweepEventKey = "SWEEP"

// Options tunes the sweeper.
type Options struct {
	StaleAfter       time.Duration
	QueuedStaleAfter time.Duration
	Interval         time.Duration
	MaxAttempts      int
}

// OptionsFromConfig reads the [sweep] section and the worker attempt limit.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StaleAfter:       cfg.StaleAfter(),
		QueuedStaleAfter: cfg.QueuedStaleAfter(),
		Interval:         time.Duration(cfg.Sweep.IntervalSeconds) * time.Second,
		MaxAttempts:      cfg.Worker.MaxAttempts,
	}
}

// Report counts the rows one pass changed.
type Report struct {
	Reclaimed int64
	Requeued  int64
}

// Total is the number of rows changed.
func (r Report) Total() int64 {
	return r.Reclaimed + r.Requeued
}

// Sweeper resets stale claims.
type Sweeper struct {
	store    store.Store
	recorder status.Recorder
	logger   *slog.Logger
	opts     Options
	now      func() time.Time
}

// New constructs a sweeper. A nil recorder discards status updates.
func New(s store.Store, recorder status.Recorder, opts Options, logger *slog.Logger) *Sweeper {
	if recorder == nil {
		recorder = status.Nop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Sweeper{
		store:    s,
		recorder: recorder,
		logger:   logging.NewComponentLogger(logger, "sweeper"),
		opts:     opts,
		now:      time.Now,
	}
}

// RunOnce performs one sweep pass.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report
	now := s.now()

	if s.opts.StaleAfter > 0 {
		n, err := s.store.ReclaimStale(ctx, now.Add(-s.opts.StaleAfter), s.opts.MaxAttempts)
		if err != nil {
			return report, fmt.Errorf("reclaim stale claims: %w", err)
		}
		report.Reclaimed = n
	}
	if s.opts.QueuedStaleAfter > 0 {
		n, err := s.store.RequeueStranded(ctx, now.Add(-s.opts.QueuedStaleAfter))
		if err != nil {
			return report, fmt.Errorf("requeue stranded items: %w", err)
		}
		report.Requeued = n
	}

	if report.Total() > 0 {
		s.recorder.Increment(status.CounterSwept, report.Total())
		s.recorder.PushRecent(status.Event{
			Timestamp:   now.UTC(),
			BusinessKey: SweepEventKey,
			Status:      "swept",
			Message:     fmt.Sprintf("reclaimed %d stale, requeued %d stranded", report.Reclaimed, report.Requeued),
		})
		s.logger.Info("sweep reset items",
			logging.Int64("reclaimed", report.Reclaimed),
			logging.Int64("requeued", report.Requeued),
		)
	}
	return report, nil
}

// Run repeats RunOnce every interval until ctx is cancelled. Pass failures
// are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started",
		logging.Duration("stale_after", s.opts.StaleAfter),
		logging.Duration("queued_stale_after", s.opts.QueuedStaleAfter),
		logging.Duration("interval", s.opts.Interval),
	)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "sweep failed; stuck items may remain", "sweep_failed",
				logging.Error(err),
				logging.Hint("check work store access"),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
