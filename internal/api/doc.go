// Package api hosts the HTTP server, middleware, and REST handlers for the
// resolver service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST and GET /v1/resolve for media resolution.
//   - /v1/admin/... for cache, credential, and runtime-settings operations,
//     guarded by the X-Admin-Key header.
package api
