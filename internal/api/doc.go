// Package api hosts the optional status server that runs alongside the
// pipeline. Routes:
//   - GET /healthz and /readyz for liveness and store connectivity.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for link counts by crawl and summary status.
//   - GET /v1/links for summarized links with their tags.
package api
