// Package notifications pushes operator alerts to ntfy.
//
// Workers report items that exhausted their retry budget and the daemon
// reports fatal errors. When no topic is configured NewService returns a
// no-op, so callers never need to check whether alerts are enabled.
package notifications
