// Package main hosts the tenderq CLI entrypoint and command graph.
//
// Commands open the configured work store and transport directly. Long
// running roles (producer, worker, sweep) run in the foreground until
// interrupted; item commands inspect and repair the store.
package main
