package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Failures are
// reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// RateLimiter spaces outbound fetches.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// DomainStore persists domains and crawl jobs.
type DomainStore interface {
	// ResetStaleDomains returns in_progress domains untouched since before
	// now-olderThan to pending and cancels their running jobs.
	ResetStaleDomains(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error)
	PendingCount(ctx context.Context) (int64, error)
	// ClaimNextPending atomically moves the oldest active pending domain to
	// in_progress. The boolean is false when nothing is pending.
	ClaimNextPending(ctx context.Context, now time.Time) (Domain, bool, error)
	GetDomainByHost(ctx context.Context, host string) (Domain, error)
	MarkDomainInProgress(ctx context.Context, domainID int64, now time.Time) (Domain, error)
	UpdateDomainStatus(ctx context.Context, update DomainUpdate) error
	BeginJob(ctx context.Context, job CrawlJob) error
	FinalizeJob(ctx context.Context, job CrawlJob) error
	AddDomains(ctx context.Context, hosts []string, now time.Time) (int, error)
}

// KeywordStore runs keyword index writes inside a single transaction.
type KeywordStore interface {
	WithinTx(ctx context.Context, fn func(tx KeywordTx) error) error
}

// KeywordTx is the transactional view of the keyword index.
type KeywordTx interface {
	// UpsertKeyword returns the id of the row for normalized, creating it with
	// display as its keyword when absent. created reports whether it was new.
	UpsertKeyword(ctx context.Context, display, normalized string, now time.Time) (id int64, created bool, err error)
	// LockLink returns the link for key, locked for update.
	LockLink(ctx context.Context, key LinkKey) (DomainKeywordLink, bool, error)
	DomainHasKeyword(ctx context.Context, domainID, keywordID int64) (bool, error)
	SaveLink(ctx context.Context, link DomainKeywordLink, created bool) error
	IncrementKeywordCounts(ctx context.Context, keywordID, occurrences, newDomains int64) error
}

// ReportStore serves read-only summaries for operators.
type ReportStore interface {
	Statistics(ctx context.Context) (Statistics, error)
	RecentJobs(ctx context.Context, limit int) ([]JobSummary, error)
	TopKeywords(ctx context.Context, limit int) ([]KeywordMaster, error)
	Ping(ctx context.Context) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	DomainStore
	KeywordStore
	ReportStore
	Close()
}
