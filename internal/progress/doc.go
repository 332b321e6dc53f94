// Package progress carries harvest and verification milestones from the
// pipeline to observers. Emitters hand events to a Hub that never blocks; the
// Hub batches them on one goroutine and fans batches out to sinks such as
// structured logs, Prometheus collectors, or the live snapshot served over HTTP.
package progress
