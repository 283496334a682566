// Package daemon coordinates the long-running tenderqd process.
//
// It wires the producer, the worker pool, and the staleness sweeper around a
// shared work store and queue transport, runs them as one lifecycle, and uses
// a flock-based lock file to prevent multiple instances on the same state
// directory. Startup runs the preflight checks first so a missing directory or
// unreachable backend stops the process instead of failing every task.
//
// Keep orchestration logic here: the processing steps themselves live in the
// producer, worker, and sweeper packages.
package daemon
