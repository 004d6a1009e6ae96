// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/targets for target management, manual checks and history.
//   - /v1/settings for runtime settings such as the check interval.
package api
