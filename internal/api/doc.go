// Package api hosts the HTTP status server for operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for domain and keyword counts.
//   - GET /v1/jobs/recent and /v1/keywords/top for the crawl report.
package api
