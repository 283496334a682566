// Package logging assembles structured slog loggers used by the tenderq
// producer, workers, and sweep.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with the worker identity and the business
// key being processed. Long-running processes also mirror every record as JSON
// into a per-process file under the configured log directory. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
