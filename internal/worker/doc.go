// Package worker implements the consumer side of the bid pipeline.
//
// A Worker pulls one task at a time from the queue transport, claims the
// matching work store row, downloads the bid document, runs the transformer,
// and writes exactly one terminal state for the row. The store claim is the
// only mutual exclusion between workers: duplicate or stale deliveries fail to
// claim and are acknowledged without side effects.
//
// Every step is reported to the status recorder as a recent event keyed by the
// business key, so the dashboard shows where each task is in the state
// machine. Pool runs several workers in one process, each with its own
// identity.
package worker
