// Package logs reads the per-process log files written under the configured
// log directory.
//
// Last returns the trailing lines of a file with bounded memory; Follow polls
// from an offset and hands each new line to a callback until the context is
// cancelled, restarting from the top when the file is truncated.
package logs
