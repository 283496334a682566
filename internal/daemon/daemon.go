package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"tenderq/internal/config"
	"tenderq/internal/fetch"
	"tenderq/internal/logging"
	"tenderq/internal/notifications"
	"tenderq/internal/preflight"
	"tenderq/internal/producer"
	"tenderq/internal/status"
	"tenderq/internal/store"
	"tenderq/internal/sweeper"
	"tenderq/internal/transform"
	"tenderq/internal/transport"
	"tenderq/internal/worker"
)

// ErrAlreadyRunning is returned when another daemon holds the lock file.
var ErrAlreadyRunning = errors.New("another tenderqd instance is already running")

// Components are the handles the daemon runs against. The daemon owns them
// after New and closes them in Close.
type Components struct {
	Store       store.Store
	Transport   transport.Transport
	Fetcher     fetch.Fetcher
	Transformer transform.Transformer
	Recorder    status.Recorder
	Notifier    notifications.Service
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	transport transport.Transport
	recorder  status.Recorder
	notifier  notifications.Service

	producer *producer.Producer
	pool     *worker.Pool
	sweeper  *sweeper.Sweeper

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workers      int
	Store        string
	Transport    string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Store == nil || comps.Transport == nil || comps.Fetcher == nil || comps.Transformer == nil {
		return nil, errors.New("daemon requires config, store, transport, fetcher, and transformer")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	recorder := comps.Recorder
	if recorder == nil {
		recorder = status.Nop{}
	}
	notifier := comps.Notifier
	if notifier == nil {
		notifier = notifications.Nop{}
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "tenderqd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     comps.Store,
		transport: comps.Transport,
		recorder:  recorder,
		notifier:  notifier,
		producer:  producer.New(comps.Store, comps.Transport, recorder, producer.OptionsFromConfig(cfg), logger),
		pool: worker.NewPool(worker.Dependencies{
			Store:       comps.Store,
			Transport:   comps.Transport,
			Fetcher:     comps.Fetcher,
			Transformer: comps.Transformer,
			Recorder:    recorder,
			Notifier:    notifier,
			Logger:      logger,
		}, worker.OptionsFromConfig(cfg), cfg.Worker.Concurrency),
		sweeper:  sweeper.New(comps.Store, recorder, sweeper.OptionsFromConfig(cfg), logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// producer, worker pool, and sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg, preflight.Targets{Store: d.store, Transport: d.transport})); len(failed) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, "; "))
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return d.producer.Run(gctx) })
	g.Go(func() error { return d.pool.Run(gctx) })
	g.Go(func() error { return d.sweeper.Run(gctx) })

	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.err = nil
	d.mu.Unlock()

	go func() {
		err := g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			d.reportFailure(err)
		}
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		close(done)
	}()

	d.running.Store(true)
	d.recorder.Snapshot(status.Snapshot{Stage: "running", Message: "tenderqd started"})
	d.logger.Info("tenderq daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", d.store.Describe()),
		logging.String("transport", d.transport.Describe()),
		logging.Int("workers", len(d.pool.Workers())),
	)
	return nil
}

func (d *Daemon) reportFailure(err error) {
	d.recorder.Snapshot(status.Snapshot{Stage: "failed", Message: err.Error()})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if notifyErr := d.notifier.NotifyError(ctx, err, "tenderqd"); notifyErr != nil {
		logging.WarnWithContext(d.logger, "daemon failure notification failed", "notify_failed",
			logging.Error(notifyErr),
			logging.Hint("check notify.ntfy_topic"),
		)
	}
}

// Done is closed when every component has stopped, either after Stop or
// because one of them failed.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error that stopped the components, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.recorder.Snapshot(status.Snapshot{Stage: "stopped", Message: "tenderqd stopped"})
	d.logger.Info("tenderq daemon stopped")
}

// Close stops the daemon and releases the transport and store.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.transport.Close(), d.store.Close())
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		Workers:      len(d.pool.Workers()),
		Store:        d.store.Describe(),
		Transport:    d.transport.Describe(),
		LockFilePath: d.lockPath,
	}
}
