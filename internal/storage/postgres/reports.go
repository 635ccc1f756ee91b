package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

var keywordColumns = []string{
	"id", "keyword", "normalized_keyword", "unique_domains_count",
	"total_occurrences", "first_seen", "last_seen",
}

// Statistics counts domains by status, keywords and running jobs.
func (s *Store) Statistics(ctx context.Context) (crawler.Statistics, error) {
	var stats crawler.Statistics

	query, args, err := s.sb.Select("crawl_status", "COUNT(*)").
		From("domains").
		GroupBy("crawl_status").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build status counts: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("count domains by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("scan status count: %w", err)
		}
		switch crawler.DomainStatus(status) {
		case crawler.DomainStatusPending:
			stats.Pending = n
		case crawler.DomainStatusInProgress:
			stats.InProgress = n
		case crawler.DomainStatusCompleted:
			stats.Completed = n
		case crawler.DomainStatusFailed:
			stats.Failed = n
		case crawler.DomainStatusPaused:
			stats.Paused = n
		}
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("count domains by status: %w", err)
	}

	if err := s.count(ctx, s.sb.Select("COUNT(*)").From("keywords_master"), &stats.TotalKeywords); err != nil {
		return stats, fmt.Errorf("count keywords: %w", err)
	}
	active := s.sb.Select("COUNT(*)").
		From("crawl_jobs").
		Where(sq.Eq{"status": string(crawler.JobStatusRunning)})
	if err := s.count(ctx, active, &stats.ActiveJobs); err != nil {
		return stats, fmt.Errorf("count active jobs: %w", err)
	}
	return stats, nil
}

func (s *Store) count(ctx context.Context, q sq.SelectBuilder, dst *int64) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, query, args...).Scan(dst)
}

// RecentJobs returns up to limit jobs, newest first, with their domain host.
func (s *Store) RecentJobs(ctx context.Context, limit int) ([]crawler.JobSummary, error) {
	query, args, err := s.sb.Select(
		"j.job_id", "j.domain_id", "j.status", "j.pages_crawled", "j.pages_failed",
		"j.new_keywords_found", "j.started_at", "j.completed_at", "j.error_message",
		"j.created_at", "d.domain",
	).
		From("crawl_jobs j").
		Join("domains d ON d.id = j.domain_id").
		OrderBy("j.created_at DESC").
		Limit(uint64(clampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent jobs: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	defer rows.Close()

	var out []crawler.JobSummary
	for rows.Next() {
		var (
			j      crawler.JobSummary
			status string
		)
		if err := rows.Scan(
			&j.ID, &j.DomainID, &status, &j.PagesCrawled, &j.PagesFailed,
			&j.NewKeywordsFound, &j.StartedAt, &j.CompletedAt, &j.ErrorMessage,
			&j.CreatedAt, &j.Host,
		); err != nil {
			return nil, fmt.Errorf("scan recent job: %w", err)
		}
		j.Status = crawler.JobStatus(status)
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	return out, nil
}

// TopKeywords returns up to limit keywords ranked by domain reach, then
// occurrences.
func (s *Store) TopKeywords(ctx context.Context, limit int) ([]crawler.KeywordMaster, error) {
	query, args, err := s.sb.Select(keywordColumns...).
		From("keywords_master").
		OrderBy("unique_domains_count DESC", "total_occurrences DESC", "normalized_keyword").
		Limit(uint64(clampLimit(limit))).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top keywords: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top keywords: %w", err)
	}
	defer rows.Close()

	var out []crawler.KeywordMaster
	for rows.Next() {
		var kw crawler.KeywordMaster
		if err := rows.Scan(
			&kw.ID, &kw.Keyword, &kw.Normalized, &kw.UniqueDomainsCount,
			&kw.TotalOccurrences, &kw.FirstSeen, &kw.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		out = append(out, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query top keywords: %w", err)
	}
	return out, nil
}

const (
	defaultReportLimit = 20
	maxReportLimit     = 500
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultReportLimit
	case limit > maxReportLimit:
		return maxReportLimit
	default:
		return limit
	}
}
