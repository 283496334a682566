// Package producer moves discovered bid items from the work store onto the
// queue transport.
//
// Each pass selects a batch of new or retryable failed items, marks them
// queued inside one store transaction, and publishes one task per item. When
// publishing fails the batch is reverted to new, so an item is never left
// queued without a task having been handed to the transport. Concurrent
// producers rely on the store's row locking to receive disjoint batches.
package producer
