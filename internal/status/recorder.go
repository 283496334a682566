package status

// Recorder receives progress updates. Implementations must not block callers
// on failures and never report errors.
type Recorder interface {
	Increment(counter Counter, delta int64)
	PushRecent(event Event)
	Snapshot(snap Snapshot)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Increment(Counter, int64) {}
func (Nop) PushRecent(Event)         {}
func (Nop) Snapshot(Snapshot)        {}

var _ Recorder = Nop{}
