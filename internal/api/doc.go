// Package api serves the optional status endpoint while a run is in flight.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress and /progress/{run_id} for run snapshots.
package api
