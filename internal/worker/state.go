package worker

// State is a step of the per-task state machine.
type State string

const (
	StateReceived        State = "received"
	StateClaimAttempted  State = "claim_attempted"
	StateClaimed         State = "claimed"
	StateRejected        State = "rejected"
	StateFetched         State = "fetched"
	StateFetchFailed     State = "fetch_failed"
	StateTransformed     State = "transformed"
	StateTransformFailed State = "transform_failed"
	StatePersisted       State = "persisted"
	StatePersistFailed   State = "persist_failed"
)

// Outcome summarizes what ProcessNext did with a delivery.
type Outcome int

const (
	// OutcomeIdle means no task arrived before the poll timeout.
	OutcomeIdle Outcome = iota
	// OutcomeDropped means the task payload was malformed and was discarded.
	OutcomeDropped
	// OutcomeRejected means the item was not claimable.
	OutcomeRejected
	// OutcomeDone means the item was processed and marked done.
	OutcomeDone
	// OutcomeFailed means the item was marked failed.
	OutcomeFailed
	// OutcomeClaimLost means another actor took the item before the terminal write.
	OutcomeClaimLost
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeClaimLost:
		return "claim_lost"
	default:
		return "unknown"
	}
}
