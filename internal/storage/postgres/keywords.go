package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

var linkColumns = []string{
	"domain_id", "keyword_id", "section_role", "page_count", "total_frequency",
	"avg_score", "max_score", "source_url", "extraction_method", "confidence_score",
	"first_seen", "last_seen",
}

// WithinTx runs fn inside a transaction, committing when it returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx crawler.KeywordTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&keywordTx{tx: tx, sb: s.sb}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type keywordTx struct {
	tx pgx.Tx
	sb sq.StatementBuilderType
}

// UpsertKeyword inserts the keyword or bumps last_seen. xmax is zero only for
// freshly inserted rows.
func (t *keywordTx) UpsertKeyword(ctx context.Context, display, normalized string, now time.Time) (int64, bool, error) {
	query, args, err := t.sb.Insert("keywords_master").
		Columns("keyword", "normalized_keyword", "first_seen", "last_seen").
		Values(display, normalized, now, now).
		Suffix("ON CONFLICT (normalized_keyword) DO UPDATE SET last_seen = EXCLUDED.last_seen RETURNING id, (xmax = 0) AS inserted").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build upsert keyword: %w", err)
	}
	var (
		id      int64
		created bool
	)
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id, &created); err != nil {
		return 0, false, fmt.Errorf("upsert keyword: %w", err)
	}
	return id, created, nil
}

func (t *keywordTx) LockLink(ctx context.Context, key crawler.LinkKey) (crawler.DomainKeywordLink, bool, error) {
	query, args, err := t.sb.Select(linkColumns...).
		From("domain_keywords").
		Where(sq.Eq{
			"domain_id":    key.DomainID,
			"keyword_id":   key.KeywordID,
			"section_role": string(key.Role),
		}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return crawler.DomainKeywordLink{}, false, fmt.Errorf("build lock link: %w", err)
	}
	var (
		link         crawler.DomainKeywordLink
		role, method string
	)
	err = t.tx.QueryRow(ctx, query, args...).Scan(
		&link.DomainID, &link.KeywordID, &role, &link.PageCount, &link.TotalFrequency,
		&link.AvgScore, &link.MaxScore, &link.SourceURL, &method, &link.ConfidenceScore,
		&link.FirstSeen, &link.LastSeen,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.DomainKeywordLink{}, false, nil
	}
	if err != nil {
		return crawler.DomainKeywordLink{}, false, fmt.Errorf("lock link: %w", err)
	}
	link.Role = crawler.Role(role)
	link.Method = crawler.ExtractionMethod(method)
	return link, true, nil
}

func (t *keywordTx) DomainHasKeyword(ctx context.Context, domainID, keywordID int64) (bool, error) {
	query, args, err := t.sb.Select("1").
		From("domain_keywords").
		Where(sq.Eq{"domain_id": domainID, "keyword_id": keywordID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build domain keyword check: %w", err)
	}
	var one int
	err = t.tx.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check domain keyword: %w", err)
	}
	return true, nil
}

func (t *keywordTx) SaveLink(ctx context.Context, link crawler.DomainKeywordLink, created bool) error {
	var (
		query string
		args  []any
		err   error
	)
	if created {
		query, args, err = t.sb.Insert("domain_keywords").
			Columns(linkColumns...).
			Values(
				link.DomainID, link.KeywordID, string(link.Role), link.PageCount, link.TotalFrequency,
				link.AvgScore, link.MaxScore, link.SourceURL, string(link.Method), link.ConfidenceScore,
				link.FirstSeen, link.LastSeen,
			).
			ToSql()
	} else {
		query, args, err = t.sb.Update("domain_keywords").
			Set("page_count", link.PageCount).
			Set("total_frequency", link.TotalFrequency).
			Set("avg_score", link.AvgScore).
			Set("max_score", link.MaxScore).
			Set("source_url", link.SourceURL).
			Set("extraction_method", string(link.Method)).
			Set("confidence_score", link.ConfidenceScore).
			Set("last_seen", link.LastSeen).
			Where(sq.Eq{
				"domain_id":    link.DomainID,
				"keyword_id":   link.KeywordID,
				"section_role": string(link.Role),
			}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build save link: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save link: %w", err)
	}
	if !created && tag.RowsAffected() == 0 {
		return fmt.Errorf("save link: %w", crawler.ErrNotFound)
	}
	return nil
}

// IncrementKeywordCounts adds to the keyword aggregates in SQL so concurrent
// commits never lose updates.
func (t *keywordTx) IncrementKeywordCounts(ctx context.Context, keywordID, occurrences, newDomains int64) error {
	query, args, err := t.sb.Update("keywords_master").
		Set("total_occurrences", sq.Expr("total_occurrences + ?", occurrences)).
		Set("unique_domains_count", sq.Expr("unique_domains_count + ?", newDomains)).
		Where(sq.Eq{"id": keywordID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build increment keyword: %w", err)
	}
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("increment keyword %d: %w", keywordID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment keyword %d: %w", keywordID, crawler.ErrNotFound)
	}
	return nil
}
