// Package sinks implements progress consumers: structured logs, Prometheus
// collectors, and an in-memory snapshot of each run for the status endpoint.
// Each sink satisfies progress.Sink and is safe for concurrent use.
package sinks
