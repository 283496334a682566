// Package store persists bid work items and owns every status transition they
// go through.
//
// The work store is the authoritative record of progress: the producer moves
// items from new to queued, a worker's conditional claim moves them to
// processing, and the same worker records done or failed. Transport messages
// are only delivery hints; whatever the queue does, the row decides who may
// work on an item.
//
// Two backends implement Store: SQLite for single-host deployments and
// PostgreSQL when producers and workers run on several machines. Both embed
// their schema and refuse to open a database whose schema_version differs.
package store
