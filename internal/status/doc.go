// Package status maintains the aggregate progress document shared by every
// producer and worker process.
//
// Updates are best-effort: Recorder methods never return errors, and a write
// that keeps failing is dropped after a bounded number of retries. Nothing in
// the pipeline depends on the document; the work store stays authoritative.
package status
