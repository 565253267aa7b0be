// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs and /v1/runs/{run_id} for the persisted run audit trail.
//   - GET /v1/status for live progress built from the snapshot sink.
//   - GET /v1/export for the latest star counts as a CSV download.
package api
