// Package memory provides an in-memory crawler.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

const staleResetMessage = "domain reset after going stale"

// Store keeps domains, jobs and the keyword index in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	nextDomainID  int64
	nextKeywordID int64

	domains  map[int64]crawler.Domain
	byHost   map[string]int64
	jobs     map[string]crawler.CrawlJob
	keywords map[int64]crawler.KeywordMaster
	byNorm   map[string]int64
	links    map[crawler.LinkKey]crawler.DomainKeywordLink
}

var _ crawler.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		domains:  make(map[int64]crawler.Domain),
		byHost:   make(map[string]int64),
		jobs:     make(map[string]crawler.CrawlJob),
		keywords: make(map[int64]crawler.KeywordMaster),
		byNorm:   make(map[string]int64),
		links:    make(map[crawler.LinkKey]crawler.DomainKeywordLink),
	}
}

// Close is a no-op.
func (s *Store) Close() {}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// AddDomains inserts hosts as active pending domains, skipping known hosts.
func (s *Store) AddDomains(_ context.Context, hosts []string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, host := range hosts {
		if host == "" {
			continue
		}
		if _, exists := s.byHost[host]; exists {
			continue
		}
		s.nextDomainID++
		s.domains[s.nextDomainID] = crawler.Domain{
			ID:        s.nextDomainID,
			Host:      host,
			Status:    crawler.DomainStatusPending,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.byHost[host] = s.nextDomainID
		added++
	}
	return added, nil
}

// SetDomainActive toggles whether a domain is eligible for claiming.
func (s *Store) SetDomainActive(domainID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[domainID]
	if !ok {
		return crawler.ErrNotFound
	}
	d.IsActive = active
	s.domains[domainID] = d
	return nil
}

// ResetStaleDomains returns in_progress domains not updated since
// now-olderThan to pending and cancels their unfinished jobs.
func (s *Store) ResetStaleDomains(_ context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-olderThan)
	reset := make(map[int64]struct{})
	for id, d := range s.domains {
		if d.Status != crawler.DomainStatusInProgress || !d.UpdatedAt.Before(cutoff) {
			continue
		}
		d.Status = crawler.DomainStatusPending
		d.UpdatedAt = now
		s.domains[id] = d
		reset[id] = struct{}{}
	}
	for id, job := range s.jobs {
		if _, ok := reset[job.DomainID]; !ok || job.Status.Terminal() {
			continue
		}
		job.Status = crawler.JobStatusCancelled
		job.ErrorMessage = staleResetMessage
		job.CompletedAt = timePtr(now)
		s.jobs[id] = job
	}
	return int64(len(reset)), nil
}

// PendingCount returns the number of active pending domains.
func (s *Store) PendingCount(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, d := range s.domains {
		if d.IsActive && d.Status == crawler.DomainStatusPending {
			n++
		}
	}
	return n, nil
}

// ClaimNextPending moves the oldest active pending domain to in_progress.
func (s *Store) ClaimNextPending(_ context.Context, now time.Time) (crawler.Domain, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		next  crawler.Domain
		found bool
	)
	for _, d := range s.domains {
		if !d.IsActive || d.Status != crawler.DomainStatusPending {
			continue
		}
		if !found || d.CreatedAt.Before(next.CreatedAt) ||
			(d.CreatedAt.Equal(next.CreatedAt) && d.ID < next.ID) {
			next, found = d, true
		}
	}
	if !found {
		return crawler.Domain{}, false, nil
	}
	next.Status = crawler.DomainStatusInProgress
	next.UpdatedAt = now
	s.domains[next.ID] = next
	return next, true, nil
}

// GetDomainByHost looks a domain up by its normalized host.
func (s *Store) GetDomainByHost(_ context.Context, host string) (crawler.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHost[host]
	if !ok {
		return crawler.Domain{}, fmt.Errorf("get domain %q: %w", host, crawler.ErrNotFound)
	}
	return s.domains[id], nil
}

// MarkDomainInProgress moves a domain to in_progress whatever its status.
func (s *Store) MarkDomainInProgress(_ context.Context, domainID int64, now time.Time) (crawler.Domain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[domainID]
	if !ok {
		return crawler.Domain{}, fmt.Errorf("mark domain %d in progress: %w", domainID, crawler.ErrNotFound)
	}
	d.Status = crawler.DomainStatusInProgress
	d.UpdatedAt = now
	s.domains[domainID] = d
	return d, nil
}

// UpdateDomainStatus applies a status change. Nil timestamps are left untouched.
func (s *Store) UpdateDomainStatus(_ context.Context, update crawler.DomainUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[update.DomainID]
	if !ok {
		return fmt.Errorf("update domain %d: %w", update.DomainID, crawler.ErrNotFound)
	}
	d.Status = update.Status
	d.UpdatedAt = update.UpdatedAt
	if update.LastCrawled != nil {
		d.LastCrawled = timePtr(*update.LastCrawled)
	}
	if update.NextCrawlDate != nil {
		d.NextCrawlDate = timePtr(*update.NextCrawlDate)
	}
	s.domains[update.DomainID] = d
	return nil
}

// BeginJob records a new job.
func (s *Store) BeginJob(_ context.Context, job crawler.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("begin job %s: job already exists", job.ID)
	}
	if _, ok := s.domains[job.DomainID]; !ok {
		return fmt.Errorf("begin job %s: domain %d: %w", job.ID, job.DomainID, crawler.ErrNotFound)
	}
	s.jobs[job.ID] = job
	return nil
}

// FinalizeJob overwrites a job with its final state.
func (s *Store) FinalizeJob(_ context.Context, job crawler.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("finalize job %s: %w", job.ID, crawler.ErrNotFound)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(_ context.Context, jobID string) (crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.CrawlJob{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrNotFound)
	}
	return job, nil
}

// Links returns every link of a domain ordered by keyword then role.
func (s *Store) Links(domainID int64) []crawler.DomainKeywordLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.DomainKeywordLink
	for key, link := range s.links {
		if key.DomainID == domainID {
			out = append(out, link)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].KeywordID != out[j].KeywordID {
			return out[i].KeywordID < out[j].KeywordID
		}
		return out[i].Role < out[j].Role
	})
	return out
}

// Keyword returns the keyword row for a normalized form.
func (s *Store) Keyword(normalized string) (crawler.KeywordMaster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNorm[normalized]
	if !ok {
		return crawler.KeywordMaster{}, false
	}
	return s.keywords[id], true
}

// Statistics counts domains by status, keywords and unfinished jobs.
func (s *Store) Statistics(context.Context) (crawler.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats crawler.Statistics
	for _, d := range s.domains {
		switch d.Status {
		case crawler.DomainStatusPending:
			stats.Pending++
		case crawler.DomainStatusInProgress:
			stats.InProgress++
		case crawler.DomainStatusCompleted:
			stats.Completed++
		case crawler.DomainStatusFailed:
			stats.Failed++
		case crawler.DomainStatusPaused:
			stats.Paused++
		}
		stats.Total++
	}
	stats.TotalKeywords = int64(len(s.keywords))
	for _, job := range s.jobs {
		if job.Status == crawler.JobStatusRunning {
			stats.ActiveJobs++
		}
	}
	return stats, nil
}

// RecentJobs returns up to limit jobs, newest first.
func (s *Store) RecentJobs(_ context.Context, limit int) ([]crawler.JobSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.JobSummary, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, crawler.JobSummary{CrawlJob: job, Host: s.domains[job.DomainID].Host})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TopKeywords returns up to limit keywords ranked by domain reach, then
// occurrences.
func (s *Store) TopKeywords(_ context.Context, limit int) ([]crawler.KeywordMaster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.KeywordMaster, 0, len(s.keywords))
	for _, kw := range s.keywords {
		out = append(out, kw)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UniqueDomainsCount != b.UniqueDomainsCount {
			return a.UniqueDomainsCount > b.UniqueDomainsCount
		}
		if a.TotalOccurrences != b.TotalOccurrences {
			return a.TotalOccurrences > b.TotalOccurrences
		}
		return a.Normalized < b.Normalized
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithinTx runs fn holding the write lock. The keyword index is restored if
// fn returns an error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx crawler.KeywordTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotIndex()
	if err := fn(&keywordTx{s: s}); err != nil {
		s.restoreIndex(snapshot)
		return err
	}
	return nil
}

type indexSnapshot struct {
	nextKeywordID int64
	keywords      map[int64]crawler.KeywordMaster
	byNorm        map[string]int64
	links         map[crawler.LinkKey]crawler.DomainKeywordLink
}

func (s *Store) snapshotIndex() indexSnapshot {
	snap := indexSnapshot{
		nextKeywordID: s.nextKeywordID,
		keywords:      make(map[int64]crawler.KeywordMaster, len(s.keywords)),
		byNorm:        make(map[string]int64, len(s.byNorm)),
		links:         make(map[crawler.LinkKey]crawler.DomainKeywordLink, len(s.links)),
	}
	for k, v := range s.keywords {
		snap.keywords[k] = v
	}
	for k, v := range s.byNorm {
		snap.byNorm[k] = v
	}
	for k, v := range s.links {
		snap.links[k] = v
	}
	return snap
}

func (s *Store) restoreIndex(snap indexSnapshot) {
	s.nextKeywordID = snap.nextKeywordID
	s.keywords = snap.keywords
	s.byNorm = snap.byNorm
	s.links = snap.links
}

// keywordTx operates on the store while WithinTx holds its lock.
type keywordTx struct {
	s *Store
}

func (tx *keywordTx) UpsertKeyword(_ context.Context, display, normalized string, now time.Time) (int64, bool, error) {
	s := tx.s
	if id, ok := s.byNorm[normalized]; ok {
		kw := s.keywords[id]
		kw.LastSeen = now
		s.keywords[id] = kw
		return id, false, nil
	}
	s.nextKeywordID++
	s.keywords[s.nextKeywordID] = crawler.KeywordMaster{
		ID:         s.nextKeywordID,
		Keyword:    display,
		Normalized: normalized,
		FirstSeen:  now,
		LastSeen:   now,
	}
	s.byNorm[normalized] = s.nextKeywordID
	return s.nextKeywordID, true, nil
}

func (tx *keywordTx) LockLink(_ context.Context, key crawler.LinkKey) (crawler.DomainKeywordLink, bool, error) {
	link, ok := tx.s.links[key]
	return link, ok, nil
}

func (tx *keywordTx) DomainHasKeyword(_ context.Context, domainID, keywordID int64) (bool, error) {
	for key := range tx.s.links {
		if key.DomainID == domainID && key.KeywordID == keywordID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *keywordTx) SaveLink(_ context.Context, link crawler.DomainKeywordLink, created bool) error {
	key := link.Key()
	if _, exists := tx.s.links[key]; exists == created {
		if created {
			return fmt.Errorf("insert link %+v: link already exists", key)
		}
		return fmt.Errorf("update link %+v: %w", key, crawler.ErrNotFound)
	}
	tx.s.links[key] = link
	return nil
}

func (tx *keywordTx) IncrementKeywordCounts(_ context.Context, keywordID, occurrences, newDomains int64) error {
	kw, ok := tx.s.keywords[keywordID]
	if !ok {
		return fmt.Errorf("increment keyword %d: %w", keywordID, crawler.ErrNotFound)
	}
	kw.TotalOccurrences += occurrences
	kw.UniqueDomainsCount += newDomains
	tx.s.keywords[keywordID] = kw
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
