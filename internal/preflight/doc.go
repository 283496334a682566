// Package preflight provides readiness checks for the work store, the queue
// transport, helper binaries and filesystem paths that tenderq depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the producer, worker pool and
//     sweeper. If a required check fails, startup aborts instead of letting
//     every task fail the same way.
//   - The CLI "tenderq health" command prints every result as a table.
//
// Optional checks (such as pdftotext) never fail the overall run.
package preflight
