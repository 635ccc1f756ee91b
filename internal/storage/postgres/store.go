// Package postgres provides the Postgres-backed crawler.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

//go:embed schema.sql
var schemaSQL string

const staleResetMessage = "domain reset after going stale"

var domainColumns = []string{
	"id", "domain", "crawl_status", "is_active", "last_crawled",
	"next_crawl_date", "created_at", "updated_at",
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ApplySchema     bool
}

// pool is the subset of *pgxpool.Pool the store needs.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists domains, crawl jobs and the keyword index in Postgres.
type Store struct {
	pool pool
	sb   sq.StatementBuilderType
}

var _ crawler.Store = (*Store)(nil)

// NewStore connects to Postgres using the provided config and optionally
// creates the schema.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, sb: newBuilder()}
	if cfg.ApplySchema {
		if err := s.ApplySchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, sb: newBuilder()}, nil
}

func newBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// ApplySchema creates the tables and indexes when they do not exist.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// AddDomains inserts hosts as pending, ignoring hosts already present.
func (s *Store) AddDomains(ctx context.Context, hosts []string, now time.Time) (int, error) {
	q := s.sb.Insert("domains").
		Columns("domain", "crawl_status", "is_active", "created_at", "updated_at").
		Suffix("ON CONFLICT (domain) DO NOTHING")
	rows := 0
	for _, host := range hosts {
		if host == "" {
			continue
		}
		q = q.Values(host, string(crawler.DomainStatusPending), true, now, now)
		rows++
	}
	if rows == 0 {
		return 0, nil
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert domains: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert domains: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ResetStaleDomains returns in_progress domains untouched since now-olderThan
// to pending and cancels their unfinished jobs, in one transaction.
func (s *Store) ResetStaleDomains(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	query, args, err := s.sb.Update("domains").
		Set("crawl_status", string(crawler.DomainStatusPending)).
		Set("updated_at", now).
		Where(sq.Eq{"crawl_status": string(crawler.DomainStatusInProgress)}).
		Where(sq.Lt{"updated_at": now.Add(-olderThan)}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build stale reset: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin stale reset: %w", err)
	}
	ids, err := queryIDs(ctx, tx, query, args...)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, fmt.Errorf("reset stale domains: %w", err)
	}
	if len(ids) > 0 {
		jobsQuery, jobsArgs, err := s.sb.Update("crawl_jobs").
			Set("status", string(crawler.JobStatusCancelled)).
			Set("error_message", staleResetMessage).
			Set("completed_at", now).
			Where(sq.Eq{"domain_id": ids}).
			Where(sq.Eq{"status": []string{string(crawler.JobStatusQueued), string(crawler.JobStatusRunning)}}).
			ToSql()
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("build orphan job cancel: %w", err)
		}
		if _, err := tx.Exec(ctx, jobsQuery, jobsArgs...); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("cancel orphan jobs: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit stale reset: %w", err)
	}
	return int64(len(ids)), nil
}

func queryIDs(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]int64, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PendingCount returns the number of active pending domains.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Select("COUNT(*)").
		From("domains").
		Where(sq.Eq{"crawl_status": string(crawler.DomainStatusPending), "is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build pending count: %w", err)
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending domains: %w", err)
	}
	return n, nil
}

// ClaimNextPending atomically moves the oldest active pending domain to
// in_progress. Concurrent claimers skip rows locked by each other.
func (s *Store) ClaimNextPending(ctx context.Context, now time.Time) (crawler.Domain, bool, error) {
	query, args, err := s.sb.Update("domains").
		Set("crawl_status", string(crawler.DomainStatusInProgress)).
		Set("updated_at", now).
		Where(`id = (SELECT id FROM domains WHERE crawl_status = ? AND is_active
			ORDER BY created_at, id LIMIT 1 FOR UPDATE SKIP LOCKED)`, string(crawler.DomainStatusPending)).
		Suffix(returning(domainColumns)).
		ToSql()
	if err != nil {
		return crawler.Domain{}, false, fmt.Errorf("build claim: %w", err)
	}
	d, err := scanDomain(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Domain{}, false, nil
	}
	if err != nil {
		return crawler.Domain{}, false, fmt.Errorf("claim pending domain: %w", err)
	}
	return d, true, nil
}

// GetDomainByHost looks a domain up by its normalized host.
func (s *Store) GetDomainByHost(ctx context.Context, host string) (crawler.Domain, error) {
	query, args, err := s.sb.Select(domainColumns...).
		From("domains").
		Where(sq.Eq{"domain": host}).
		ToSql()
	if err != nil {
		return crawler.Domain{}, fmt.Errorf("build get domain: %w", err)
	}
	d, err := scanDomain(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return crawler.Domain{}, fmt.Errorf("get domain %q: %w", host, mapNoRows(err))
	}
	return d, nil
}

// MarkDomainInProgress moves a domain to in_progress whatever its status.
func (s *Store) MarkDomainInProgress(ctx context.Context, domainID int64, now time.Time) (crawler.Domain, error) {
	query, args, err := s.sb.Update("domains").
		Set("crawl_status", string(crawler.DomainStatusInProgress)).
		Set("updated_at", now).
		Where(sq.Eq{"id": domainID}).
		Suffix(returning(domainColumns)).
		ToSql()
	if err != nil {
		return crawler.Domain{}, fmt.Errorf("build mark in progress: %w", err)
	}
	d, err := scanDomain(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return crawler.Domain{}, fmt.Errorf("mark domain %d in progress: %w", domainID, mapNoRows(err))
	}
	return d, nil
}

// UpdateDomainStatus applies a status change. Nil timestamps are left untouched.
func (s *Store) UpdateDomainStatus(ctx context.Context, update crawler.DomainUpdate) error {
	q := s.sb.Update("domains").
		Set("crawl_status", string(update.Status)).
		Set("updated_at", update.UpdatedAt)
	if update.LastCrawled != nil {
		q = q.Set("last_crawled", *update.LastCrawled)
	}
	if update.NextCrawlDate != nil {
		q = q.Set("next_crawl_date", *update.NextCrawlDate)
	}
	query, args, err := q.Where(sq.Eq{"id": update.DomainID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update domain: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update domain %d: %w", update.DomainID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update domain %d: %w", update.DomainID, crawler.ErrNotFound)
	}
	return nil
}

// BeginJob inserts a job row.
func (s *Store) BeginJob(ctx context.Context, job crawler.CrawlJob) error {
	query, args, err := s.sb.Insert("crawl_jobs").
		Columns(
			"job_id", "domain_id", "status", "pages_crawled", "pages_failed",
			"new_keywords_found", "started_at", "completed_at", "error_message", "created_at",
		).
		Values(
			job.ID, job.DomainID, string(job.Status), job.PagesCrawled, job.PagesFailed,
			job.NewKeywordsFound, job.StartedAt, job.CompletedAt, job.ErrorMessage, job.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert job: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// FinalizeJob writes the job's final status and counters.
func (s *Store) FinalizeJob(ctx context.Context, job crawler.CrawlJob) error {
	query, args, err := s.sb.Update("crawl_jobs").
		Set("status", string(job.Status)).
		Set("pages_crawled", job.PagesCrawled).
		Set("pages_failed", job.PagesFailed).
		Set("new_keywords_found", job.NewKeywordsFound).
		Set("started_at", job.StartedAt).
		Set("completed_at", job.CompletedAt).
		Set("error_message", job.ErrorMessage).
		Where(sq.Eq{"job_id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finalize job: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize job %s: %w", job.ID, crawler.ErrNotFound)
	}
	return nil
}

func scanDomain(row pgx.Row) (crawler.Domain, error) {
	var (
		d      crawler.Domain
		status string
	)
	if err := row.Scan(
		&d.ID, &d.Host, &status, &d.IsActive, &d.LastCrawled,
		&d.NextCrawlDate, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return crawler.Domain{}, err
	}
	d.Status = crawler.DomainStatus(status)
	return d, nil
}

func returning(columns []string) string {
	return "RETURNING " + strings.Join(columns, ", ")
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.ErrNotFound
	}
	return err
}
