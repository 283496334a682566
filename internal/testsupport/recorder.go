package testsupport

import (
	"sync"

	"tenderq/internal/status"
)

// Recorder is an in-memory status.Recorder for assertions.
type Recorder struct {
	mu          sync.Mutex
	counters    map[status.Counter]int64
	events      []status.Event
	queueLength *int64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{counters: make(map[status.Counter]int64)}
}

func (r *Recorder) Increment(counter status.Counter, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[counter] += delta
}

func (r *Recorder) PushRecent(event status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Snapshot(snap status.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap.QueueLength != nil {
		n := *snap.QueueLength
		r.queueLength = &n
	}
}

// Count returns the accumulated delta for counter.
func (r *Recorder) Count(counter status.Counter) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[counter]
}

// Events returns recorded events oldest first.
func (r *Recorder) Events() []status.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Event(nil), r.events...)
}

// StatesFor returns the event statuses recorded for key, oldest first.
func (r *Recorder) StatesFor(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []string
	for _, event := range r.events {
		if event.BusinessKey == key {
			states = append(states, event.Status)
		}
	}
	return states
}

// QueueLength returns the last snapshotted queue length, or -1 when none was recorded.
func (r *Recorder) QueueLength() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queueLength == nil {
		return -1
	}
	return *r.queueLength
}

var _ status.Recorder = (*Recorder)(nil)
