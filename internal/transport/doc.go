// Package transport delivers task descriptors from the producer to workers.
//
// A transport is a delivery hint, not a record of progress: a task may be lost
// or delivered more than once and workers rely on the work store claim to
// decide who processes it. Two modes are supported. In list mode a received
// task is gone from the queue. In stream mode it stays pending until Ack and
// is redelivered to another consumer once it has been idle past the claim
// window.
//
// The store backend has no broker at all: workers select claimable rows from
// the work store directly.
package transport
