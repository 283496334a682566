package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/logging"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/transport"
)

// BatchEventKey is the business key recorded on batch-level recent events.
const BatchEventKey = "BATCH"

const compensateTimeout = 30 * time.Second

// Options tunes the producer loop.
type Options struct {
	BatchSize            int
	Interval             time.Duration
	ErrorBackoff         time.Duration
	MaxConsecutiveErrors int
}

// OptionsFromConfig reads the [producer] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:            cfg.Producer.BatchSize,
		Interval:             time.Duration(cfg.Producer.IntervalSeconds) * time.Second,
		ErrorBackoff:         time.Duration(cfg.Producer.ErrorBackoffSeconds) * time.Second,
		MaxConsecutiveErrors: cfg.Producer.MaxConsecutiveErrors,
	}
}

// Producer publishes queued work items.
type Producer struct {
	store     store.Store
	transport transport.Transport
	recorder  status.Recorder
	logger    *slog.Logger
	opts      Options
}

// New constructs a producer. A nil recorder discards status updates.
func New(s store.Store, t transport.Transport, recorder status.Recorder, opts Options, logger *slog.Logger) *Producer {
	if recorder == nil {
		recorder = status.Nop{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = opts.Interval
	}
	return &Producer{
		store:     s,
		transport: t,
		recorder:  recorder,
		logger:    logging.NewComponentLogger(logger, "producer"),
		opts:      opts,
	}
}

// RunOnce selects one batch and publishes it. It returns the number of tasks
// handed to the transport.
func (p *Producer) RunOnce(ctx context.Context) (int, error) {
	items, err := p.store.SelectAndMarkQueued(ctx, p.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("select batch: %w", err)
	}
	if len(items) == 0 {
		p.snapshotQueueLength(ctx)
		return 0, nil
	}

	tasks := make([]transport.Task, 0, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, transport.Task{
			ID:              item.ID,
			BusinessKey:     item.BusinessKey,
			ResourceLocator: item.ResourceLocator,
			Page:            item.Page,
		})
		ids = append(ids, item.ID)
	}

	if err := p.transport.Publish(ctx, tasks); err != nil {
		return 0, p.compensate(ctx, ids, err)
	}

	n := len(tasks)
	p.recorder.Increment(status.CounterEnqueued, int64(n))
	p.recorder.PushRecent(status.Event{
		Timestamp:   time.Now().UTC(),
		BusinessKey: BatchEventKey,
		Status:      "enqueued",
		Message:     fmt.Sprintf("enqueued %d tasks", n),
	})
	p.snapshotQueueLength(ctx)

	p.logger.Info("batch published",
		logging.Int("count", n),
		logging.String("transport", p.transport.Describe()),
	)
	return n, nil
}

// compensate returns a batch to new after its publish failed. It runs even
// when ctx is already cancelled.
func (p *Producer) compensate(ctx context.Context, ids []int64, publishErr error) error {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	reverted, err := p.store.RevertToNew(revertCtx, ids)
	if err != nil {
		logging.ErrorWithContext(p.logger, "batch revert failed; items stay queued until the stranded sweep",
			"producer_revert_failed",
			logging.Int("count", len(ids)),
			logging.Error(err),
			logging.Hint("enable sweep.queued_stale_after_seconds or run tenderq sweep"),
		)
		return errors.Join(fmt.Errorf("publish batch: %w", publishErr), fmt.Errorf("revert batch: %w", err))
	}
	logging.WarnWithContext(p.logger, "publish failed; batch reverted to new",
		"producer_publish_failed",
		logging.Int("count", len(ids)),
		logging.Int64("reverted", reverted),
		logging.Error(publishErr),
		logging.Hint("check transport connectivity"),
	)
	return fmt.Errorf("publish batch: %w", publishErr)
}

func (p *Producer) snapshotQueueLength(ctx context.Context) {
	n, err := p.transport.Len(ctx)
	if err != nil {
		p.logger.Debug("queue length unavailable", logging.Error(err))
		return
	}
	p.recorder.Snapshot(status.QueueLength(n))
}

// Run repeats RunOnce every interval until ctx is cancelled. Failures are
// retried after the error backoff; Run gives up after MaxConsecutiveErrors
// failures in a row when that limit is positive.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("producer started",
		logging.Int("batch_size", p.opts.BatchSize),
		logging.Duration("interval", p.opts.Interval),
	)
	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		wait := p.opts.Interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutive++
			logging.WarnWithContext(p.logger, "producer pass failed", "producer_pass_failed",
				logging.Int("consecutive_errors", consecutive),
				logging.Error(err),
				logging.Hint("check work store and transport connectivity"),
			)
			if p.opts.MaxConsecutiveErrors > 0 && consecutive >= p.opts.MaxConsecutiveErrors {
				return fmt.Errorf("producer stopped after %d consecutive errors: %w", consecutive, err)
			}
			wait = p.opts.ErrorBackoff
		} else {
			consecutive = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
