package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/fetch"
	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
	"tenderq/internal/notifications"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/transform"
	"tenderq/internal/transport"
)

const terminalWriteTimeout = 30 * time.Second

// Options tunes a worker.
type Options struct {
	ID                   string
	PDFDir               string
	OutputDir            string
	PollTimeout          time.Duration
	TaskTimeout          time.Duration
	HeartbeatInterval    time.Duration
	ErrorBackoff         time.Duration
	MaxAttempts          int
	MaxConsecutiveErrors int
}

// OptionsFromConfig reads the [worker] and [paths] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ID:                   cfg.Worker.ID,
		PDFDir:               cfg.Paths.PDFDir,
		OutputDir:            cfg.Paths.OutputDir,
		PollTimeout:          cfg.PollTimeout(),
		TaskTimeout:          cfg.TaskTimeout(),
		HeartbeatInterval:    time.Duration(cfg.Worker.HeartbeatIntervalSeconds) * time.Second,
		ErrorBackoff:         time.Duration(cfg.Worker.ErrorBackoffSeconds) * time.Second,
		MaxAttempts:          cfg.Worker.MaxAttempts,
		MaxConsecutiveErrors: cfg.Worker.MaxConsecutiveErrors,
	}
}

// Dependencies are the collaborators shared by every worker in a process.
// Recorder, Notifier and Logger are optional.
type Dependencies struct {
	Store       store.Store
	Transport   transport.Transport
	Fetcher     fetch.Fetcher
	Transformer transform.Transformer
	Recorder    status.Recorder
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Worker processes one task at a time.
type Worker struct {
	store       store.Store
	transport   transport.Transport
	fetcher     fetch.Fetcher
	transformer transform.Transformer
	recorder    status.Recorder
	notifier    notifications.Service
	logger      *slog.Logger
	opts        Options
}

// New constructs a worker identified by opts.ID.
func New(deps Dependencies, opts Options) *Worker {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = status.Nop{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Second
	}
	logger = logging.NewComponentLogger(logger, "worker").With(logging.WorkerID(opts.ID))
	return &Worker{
		store:       deps.Store,
		transport:   deps.Transport,
		fetcher:     deps.Fetcher,
		transformer: deps.Transformer,
		recorder:    recorder,
		notifier:    notifier,
		logger:      logger,
		opts:        opts,
	}
}

// ID returns the worker identity written to lock_owner.
func (w *Worker) ID() string {
	return w.opts.ID
}

// DocumentPath is where the downloaded document for key is stored.
func (w *Worker) DocumentPath(key string) string {
	return filepath.Join(w.opts.PDFDir, "bid_"+fileutil.SafeName(key)+".pdf")
}

// ResultPath is where the transformed document for key is written.
func (w *Worker) ResultPath(key string) string {
	return filepath.Join(w.opts.OutputDir, "bid_"+fileutil.SafeName(key)+".json")
}

// ProcessNext handles at most one delivery. A non-nil error means the
// transport or store could not be reached; the delivery, if any, was left
// unacknowledged so stream-mode transports redeliver it.
func (w *Worker) ProcessNext(ctx context.Context) (Outcome, error) {
	d, err := w.transport.Next(ctx, w.opts.PollTimeout)
	if err != nil {
		return OutcomeIdle, fmt.Errorf("next task: %w", err)
	}
	if d == nil {
		return OutcomeIdle, nil
	}

	task := d.Task
	if !task.Valid() {
		logging.WarnWithContext(w.logger, "dropping malformed task", "task_malformed",
			logging.Int("payload_bytes", len(d.Raw)),
			logging.Hint("check the producer writing to this queue"),
		)
		w.ack(ctx, d)
		return OutcomeDropped, nil
	}

	logger := w.logger.With(
		logging.BusinessKey(task.BusinessKey),
		logging.ItemID(task.ID),
	)
	if d.Redelivered {
		logger.Info("task redelivered")
	}
	w.event(task.BusinessKey, StateReceived, "")
	w.event(task.BusinessKey, StateClaimAttempted, "")

	item, err := w.store.Claim(ctx, task.BusinessKey, w.opts.ID)
	if err != nil {
		return OutcomeIdle, fmt.Errorf("claim %s: %w", task.BusinessKey, err)
	}
	if item == nil {
		logger.Info("task not claimable; skipping")
		w.event(task.BusinessKey, StateRejected, "not claimable")
		w.ack(ctx, d)
		return OutcomeRejected, nil
	}

	logger.Info("task claimed", logging.Int("attempt", item.Attempts))
	w.event(item.BusinessKey, StateClaimed, fmt.Sprintf("attempt %d", item.Attempts))
	w.recorder.Increment(status.CounterInProgress, 1)
	outcome := w.process(ctx, item, logger)
	w.recorder.Increment(status.CounterInProgress, -1)

	w.ack(ctx, d)
	w.snapshotQueueLength(ctx)
	return outcome, nil
}

func (w *Worker) process(ctx context.Context, item *store.Item, logger *slog.Logger) Outcome {
	taskCtx := ctx
	if w.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, w.opts.TaskTimeout)
		defer cancel()
	}

	hbCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var wg sync.WaitGroup
	if w.opts.HeartbeatInterval > 0 {
		wg.Add(1)
		go w.heartbeatLoop(hbCtx, &wg, item.BusinessKey, logger)
	}
	result, err := w.runPipeline(taskCtx, item, logger)
	stopHeartbeat()
	wg.Wait()

	// Terminal writes must land even when the task deadline or shutdown
	// already cancelled taskCtx.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if err == nil {
		err = w.store.MarkDone(writeCtx, item.BusinessKey, w.opts.ID, result)
		switch {
		case err == nil:
			w.event(item.BusinessKey, StatePersisted, result.ResultLocator)
			w.recorder.Increment(status.CounterProcessed, 1)
			w.recorder.Increment(status.CounterDone, 1)
			logger.Info("task done",
				logging.String("result", result.ResultLocator),
				logging.Float64("confidence", result.Confidence),
			)
			return OutcomeDone
		case errors.Is(err, store.ErrClaimLost):
			w.claimLost(item.BusinessKey, logger)
			return OutcomeClaimLost
		default:
			err = &PersistError{Err: err}
		}
	}
	return w.fail(writeCtx, item, err, logger)
}

func (w *Worker) fail(ctx context.Context, item *store.Item, cause error, logger *slog.Logger) Outcome {
	state := failureState(cause)
	reason := failureReason(cause)
	w.event(item.BusinessKey, state, reason)

	exhausted, err := w.store.MarkFailed(ctx, item.BusinessKey, w.opts.ID, reason, w.opts.MaxAttempts)
	if errors.Is(err, store.ErrClaimLost) {
		w.claimLost(item.BusinessKey, logger)
		return OutcomeClaimLost
	}
	if err != nil {
		logging.ErrorWithContext(logger, "mark failed did not persist; the stale sweep will reclaim the row",
			"mark_failed_error",
			logging.String("reason", reason),
			logging.Error(err),
			logging.Hint("check work store connectivity"),
		)
	}

	w.recorder.Increment(status.CounterProcessed, 1)
	w.recorder.Increment(status.CounterFailed, 1)
	logging.WarnWithContext(logger, "task failed", string(state),
		logging.String("reason", reason),
		logging.Int("attempt", item.Attempts),
		logging.Bool("exhausted", exhausted),
		logging.Hint(hintFor(state)),
	)
	if exhausted {
		if err := w.notifier.NotifyItemExhausted(ctx, item.BusinessKey, reason, item.Attempts); err != nil {
			logging.WarnWithContext(logger, "exhausted item notification failed", "notify_failed",
				logging.Error(err),
				logging.Hint("check notify.ntfy_topic"),
			)
		}
	}
	return OutcomeFailed
}

func (w *Worker) claimLost(key string, logger *slog.Logger) {
	logging.WarnWithContext(logger, "claim lost before terminal write; leaving row to its new owner", "claim_lost",
		logging.Hint("raise sweep.stale_after_seconds if tasks routinely outlive it"),
	)
	w.event(key, StateRejected, "claim lost")
}

// runPipeline fetches and transforms one claimed item. Panics are converted
// into the error of the stage that raised them.
func (w *Worker) runPipeline(ctx context.Context, item *store.Item, logger *slog.Logger) (result store.Result, err error) {
	stage := StateFetchFailed
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing task",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			panicErr := fmt.Errorf("panic: %v", r)
			if stage == StateFetchFailed {
				err = &FetchError{Err: panicErr}
			} else {
				err = &TransformError{Err: panicErr}
			}
		}
	}()

	docPath := w.DocumentPath(item.BusinessKey)
	if err := w.fetcher.Fetch(ctx, item.ResourceLocator, docPath); err != nil {
		return store.Result{}, &FetchError{Err: err}
	}
	w.event(item.BusinessKey, StateFetched, docPath)

	stage = StateTransformFailed
	res, err := w.transformer.Transform(ctx, docPath, w.ResultPath(item.BusinessKey))
	if err != nil {
		return store.Result{}, &TransformError{Err: err}
	}
	fieldsJSON, err := res.FieldsJSON()
	if err != nil {
		return store.Result{}, &TransformError{Err: err}
	}
	w.event(item.BusinessKey, StateTransformed, fmt.Sprintf("confidence %.3f", res.Confidence))

	return store.Result{
		ResultLocator: res.ResultLocator,
		Confidence:    res.Confidence,
		FieldsJSON:    fieldsJSON,
	}, nil
}

func (w *Worker) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, key string, logger *slog.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(w.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.store.Heartbeat(ctx, key, w.opts.ID)
			switch {
			case err == nil:
			case errors.Is(err, store.ErrClaimLost):
				logger.Warn("heartbeat found claim lost", logging.EventType("heartbeat_claim_lost"))
				return
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			default:
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

func (w *Worker) ack(ctx context.Context, d *transport.Delivery) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()
	if err := w.transport.Ack(ackCtx, d); err != nil {
		logging.WarnWithContext(w.logger, "task ack failed; it may be redelivered", "task_ack_failed",
			logging.BusinessKey(d.Task.BusinessKey),
			logging.Error(err),
			logging.Hint("redelivery is harmless; the claim rejects duplicates"),
		)
	}
}

func (w *Worker) event(key string, state State, message string) {
	w.recorder.PushRecent(status.Event{
		Timestamp:   time.Now().UTC(),
		BusinessKey: key,
		Status:      string(state),
		Message:     message,
		Worker:      w.opts.ID,
	})
}

func (w *Worker) snapshotQueueLength(ctx context.Context) {
	n, err := w.transport.Len(ctx)
	if err != nil {
		w.logger.Debug("queue length unavailable", logging.Error(err))
		return
	}
	w.recorder.Snapshot(status.QueueLength(n))
}

func hintFor(state State) string {
	switch state {
	case StateFetchFailed:
		return "check the resource locator and network access"
	case StateTransformFailed:
		return "inspect the downloaded document; pdftotext may be missing"
	case StatePersistFailed:
		return "check work store connectivity"
	default:
		return "check logs for details"
	}
}

// Run processes tasks until ctx is cancelled. Transport and store failures
// are retried after the error backoff; Run gives up after
// MaxConsecutiveErrors failures in a row when that limit is positive.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", logging.Duration("poll_timeout", w.opts.PollTimeout))
	consecutive := 0
	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		_, err := w.ProcessNext(ctx)
		if err == nil {
			consecutive = 0
			continue
		}
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return nil
		}
		consecutive++
		logging.WarnWithContext(w.logger, "worker iteration failed", "worker_iteration_failed",
			logging.Int("consecutive_errors", consecutive),
			logging.Error(err),
			logging.Hint("check work store and transport connectivity"),
		)
		if w.opts.MaxConsecutiveErrors > 0 && consecutive >= w.opts.MaxConsecutiveErrors {
			return fmt.Errorf("worker %s stopped after %d consecutive errors: %w", w.opts.ID, consecutive, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.ErrorBackoff):
		}
	}
}
