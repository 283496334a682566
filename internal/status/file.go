package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
)

const (
	writeRetries    = 12
	writeRetryDelay = 200 * time.Millisecond
	lockPollDelay   = 20 * time.Millisecond
	defaultCap      = 80
)

// File is a Recorder persisting the document as JSON. Every update is a
// read-modify-write under a process mutex and a cross-process file lock.
type File struct {
	path      string
	recentCap int
	logger    *slog.Logger
	lock      *flock.Flock
	lockWait  time.Duration
	now       func() time.Time
	sleep     func(time.Duration)

	mu sync.Mutex
}

// NewFile returns a File recorder for path keeping at most recentCap events.
func NewFile(path string, recentCap int, logger *slog.Logger) *File {
	if recentCap <= 0 {
		recentCap = defaultCap
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &File{
		path:      path,
		recentCap: recentCap,
		logger:    logging.NewComponentLogger(logger, "status"),
		lock:      flock.New(path + ".lock"),
		lockWait:  writeRetryDelay,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Path returns the document location.
func (f *File) Path() string {
	return f.path
}

// Increment adds delta to counter.
func (f *File) Increment(counter Counter, delta int64) {
	f.update(func(doc *Document) {
		doc.increment(counter, delta)
	})
}

// PushRecent prepends an event to the recent list.
func (f *File) PushRecent(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = f.now().UTC()
	}
	f.update(func(doc *Document) {
		doc.pushRecent(event, f.recentCap)
	})
}

// Snapshot records point-in-time fields.
func (f *File) Snapshot(snap Snapshot) {
	f.update(func(doc *Document) {
		doc.apply(snap)
	})
}

// Read returns the current document.
func (f *File) Read() (*Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Read(f.path)
}

func (f *File) update(mutate func(*Document)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= writeRetries; attempt++ {
		if lastErr = f.tryUpdate(mutate); lastErr == nil {
			return
		}
		if attempt < writeRetries {
			f.sleep(writeRetryDelay)
		}
	}
	f.logger.Debug("status update dropped",
		logging.String("path", f.path),
		logging.Int("attempts", writeRetries),
		logging.Error(lastErr),
	)
}

// tryUpdate waits at most lockWait for the file lock; a busy lock costs one
// attempt.
func (f *File) tryUpdate(mutate func(*Document)) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.lockWait)
	defer cancel()
	locked, err := f.lock.TryLockContext(ctx, lockPollDelay)
	if err != nil {
		return fmt.Errorf("lock status: %w", err)
	}
	if !locked {
		return errors.New("lock status: busy")
	}
	defer func() { _ = f.lock.Unlock() }()

	doc, err := Read(f.path)
	if err != nil {
		f.logger.Warn("status document unreadable; starting fresh",
			logging.String("path", f.path),
			logging.Error(err),
		)
		doc = &Document{}
	}
	mutate(doc)
	doc.LastUpdated = f.now().UTC()
	if doc.Recent == nil {
		doc.Recent = []Event{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return fileutil.WriteAtomic(f.path, data, 0o644)
}

var _ Recorder = (*File)(nil)

// Remove deletes the document and its lock file.
func (f *File) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, path := range []string{f.path, f.path + ".lock"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
