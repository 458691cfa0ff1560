// Package api hosts the HTTP server, middleware, and REST handlers for the
// asynchronous analysis service. Routes:
//   - GET /healthz and /readyz for liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/analyses to submit a site for analysis.
//   - GET /v1/analyses/{id} and /v1/analyses/{id}/result to poll.
//   - POST /v1/analyses/{id}/cancel to stop a queued or running analysis.
package api
