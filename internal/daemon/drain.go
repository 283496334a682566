package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/logging"
	"tenderq/internal/status"
	"tenderq/internal/store"
)

// DrainOptions tunes WaitDrained.
type DrainOptions struct {
	PollInterval time.Duration
	// EmptyPolls is how many consecutive polls must find nothing left to do.
	EmptyPolls int
}

// DrainOptionsFromConfig reads the [run] section.
func DrainOptionsFromConfig(cfg *config.Config) DrainOptions {
	return DrainOptions{
		PollInterval: time.Duration(cfg.Run.PollIntervalSeconds) * time.Second,
		EmptyPolls:   cfg.Run.EmptyPolls,
	}
}

// ErrNotRunning is returned by WaitDrained before Start.
var ErrNotRunning = errors.New("daemon is not running")

// WaitDrained blocks until the transport is empty and the store holds no
// new, retryable, queued, or processing rows for EmptyPolls polls in a row.
// It returns early with the component error if the daemon stops on its own.
func (d *Daemon) WaitDrained(ctx context.Context, opts DrainOptions) error {
	done := d.Done()
	if done == nil || !d.running.Load() {
		return ErrNotRunning
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.EmptyPolls <= 0 {
		opts.EmptyPolls = 3
	}

	d.recorder.Snapshot(status.Snapshot{Stage: "draining", Message: "waiting for the queue to drain"})
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	empty := 0
	lastQueued, lastPending := int64(-1), -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			if err := d.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return ErrNotRunning
		case <-ticker.C:
		}

		queued, pending, err := d.backlog(ctx)
		if err != nil {
			empty = 0
			logging.WarnWithContext(d.logger, "drain check failed", "drain_check_failed",
				logging.Error(err),
				logging.Hint("check transport and work store access"),
			)
			continue
		}
		if queued != lastQueued || pending != lastPending {
			d.logger.Info("drain progress",
				logging.Int64("queue_length", queued),
				logging.Int("pending", pending),
			)
			lastQueued, lastPending = queued, pending
		}
		if queued > 0 || pending > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= opts.EmptyPolls {
			d.logger.Info("queue drained", logging.Int("empty_polls", empty))
			return nil
		}
	}
}

// backlog returns the transport length and the number of store rows that
// still have work ahead of them.
func (d *Daemon) backlog(ctx context.Context) (int64, int, error) {
	queued, err := d.transport.Len(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("queue length: %w", err)
	}
	items, err := d.store.List(ctx, store.StatusNew, store.StatusQueued, store.StatusProcessing, store.StatusFailed)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending items: %w", err)
	}
	pending := 0
	for _, item := range items {
		if item.Status != store.StatusFailed || item.Retryable() {
			pending++
		}
	}
	return queued, pending, nil
}
