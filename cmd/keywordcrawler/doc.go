// Package main hosts the keyword crawler entrypoint.
//
// Architecture overview:
//   - Orchestrator: internal/worker processes one domain at a time. It recovers stale in_progress domains, claims the
//     oldest pending domain, fetches the homepage, extracts menu keywords, locates service pages and extracts their
//     headings and cards. All keywords found for a domain are committed to the index in one transaction.
//   - Fetch pipeline: the Colly-based fetcher honours robots.txt (configurable), bounds each request by a timeout and
//     retries transient failures with jittered backoff. A process-wide limiter spaces consecutive fetches by a random
//     delay between the configured bounds.
//   - Keyword index: internal/reconcile normalizes, filters and deduplicates candidates into KeywordMaster rows and
//     DomainKeywordLink rows in Postgres (or the in-memory store for local runs).
//   - Configuration & plumbing: Viper populates config from env/files, zap provides structured logging and Prometheus
//     metrics are exported on /metrics when the status API is enabled.
//
// Quick checklist:
//   - Configure env vars: KEYWORDS_DB_DSN, KEYWORDS_DB_PROVIDER=memory for a throwaway run,
//     KEYWORDS_CRAWLER_RATE_LIMIT_MIN_SECONDS / _MAX_SECONDS, KEYWORDS_SERVER_ENABLED.
//   - Register domains: go run ./cmd/keywordcrawler -config config.yaml -add acme.com,globex.com
//   - Crawl one domain now: go run ./cmd/keywordcrawler -config config.yaml -domain acme.com
//   - Crawl everything pending: go run ./cmd/keywordcrawler -config config.yaml [-serve]
package main
