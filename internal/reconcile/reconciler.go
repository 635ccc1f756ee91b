// Package reconcile merges extracted keyword candidates into the global
// keyword index and the per-domain links.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
	"github.com/bharatsindha/icon-media-web-crawler/internal/metrics"
)

// Result summarizes one commit.
type Result struct {
	// NewKeywords counts KeywordMaster rows created by the commit.
	NewKeywords int
	NewLinks    int
	Observed    int
	Discarded   int
}

// Reconciler writes candidates to a KeywordStore.
type Reconciler struct {
	store  crawler.KeywordStore
	filter *keyword.Filter
	clock  crawler.Clock
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(store crawler.KeywordStore, filter *keyword.Filter, clock crawler.Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Reconciler{store: store, filter: filter, clock: clock, logger: logger}
}

// Commit reconciles all candidates of one crawl in a single transaction.
// Nothing is persisted when an error is returned.
func (r *Reconciler) Commit(ctx context.Context, domain crawler.Domain, jobID string, candidates []crawler.Candidate) (Result, error) {
	now := r.clock.Now()
	var (
		res      Result
		outcomes []candidateOutcome
	)
	err := r.store.WithinTx(ctx, func(tx crawler.KeywordTx) error {
		res = Result{}
		outcomes = outcomes[:0]
		pages := make(map[crawler.LinkKey]map[string]struct{})
		for _, c := range candidates {
			norm := keyword.Normalize(c.Text)
			if norm == "" || !r.filter.IsBusinessRelevant(norm) {
				res.Discarded++
				outcomes = append(outcomes, candidateOutcome{method: methodLabel(c), accepted: false})
				continue
			}
			created, linked, err := r.apply(ctx, tx, domain.ID, c, norm, now, pages)
			if err != nil {
				return err
			}
			if created {
				res.NewKeywords++
			}
			if linked {
				res.NewLinks++
			}
			res.Observed++
			outcomes = append(outcomes, candidateOutcome{method: methodLabel(c), accepted: true})
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("commit keywords for %s: %w", domain.Host, err)
	}

	for _, o := range outcomes {
		metrics.ObserveCandidate(o.method, o.accepted)
	}
	metrics.ObserveKeywordsCreated(res.NewKeywords)
	r.logger.Info("keywords committed",
		zap.String("domain", domain.Host),
		zap.String("job_id", jobID),
		zap.Int("observed", res.Observed),
		zap.Int("discarded", res.Discarded),
		zap.Int("new_keywords", res.NewKeywords),
		zap.Int("new_links", res.NewLinks),
	)
	return res, nil
}

type candidateOutcome struct {
	method   string
	accepted bool
}

func (r *Reconciler) apply(
	ctx context.Context,
	tx crawler.KeywordTx,
	domainID int64,
	c crawler.Candidate,
	norm string,
	now time.Time,
	pages map[crawler.LinkKey]map[string]struct{},
) (bool, bool, error) {
	keywordID, created, err := tx.UpsertKeyword(ctx, keyword.DisplayText(c.Text), norm, now)
	if err != nil {
		return false, false, fmt.Errorf("upsert keyword %q: %w", norm, err)
	}

	key := crawler.LinkKey{DomainID: domainID, KeywordID: keywordID, Role: c.Role}
	link, exists, err := tx.LockLink(ctx, key)
	if err != nil {
		return false, false, fmt.Errorf("lock link %q/%s: %w", norm, c.Role, err)
	}

	var newDomains int64
	if !exists {
		has, err := tx.DomainHasKeyword(ctx, domainID, keywordID)
		if err != nil {
			return false, false, fmt.Errorf("check domain keyword %q: %w", norm, err)
		}
		if !has {
			newDomains = 1
		}
		link = crawler.DomainKeywordLink{
			DomainID:  domainID,
			KeywordID: keywordID,
			Role:      c.Role,
			FirstSeen: now,
		}
	}

	seen, ok := pages[key]
	if !ok {
		seen = make(map[string]struct{})
		pages[key] = seen
	}
	_, pageCounted := seen[c.SourceURL]
	seen[c.SourceURL] = struct{}{}

	link = mergeLink(link, c, now, !pageCounted)
	if err := tx.SaveLink(ctx, link, !exists); err != nil {
		return false, false, fmt.Errorf("save link %q/%s: %w", norm, c.Role, err)
	}
	if err := tx.IncrementKeywordCounts(ctx, keywordID, 1, newDomains); err != nil {
		return false, false, fmt.Errorf("increment keyword %q: %w", norm, err)
	}
	return created, !exists, nil
}

// mergeLink folds one observation into a link: running mean and max of the
// score, frequency, page count and, for service roles, provenance of the best
// observation. Ties go to the most recent observation.
func mergeLink(link crawler.DomainKeywordLink, c crawler.Candidate, now time.Time, newPage bool) crawler.DomainKeywordLink {
	score := c.Confidence
	if !c.Role.IsService() {
		score = crawler.MenuConfidence
	}

	n := float64(link.TotalFrequency)
	link.AvgScore = (link.AvgScore*n + score) / (n + 1)
	link.TotalFrequency++
	if newPage {
		link.PageCount++
	}
	if c.Role.IsService() && score >= link.MaxScore {
		link.SourceURL = c.SourceURL
		link.Method = c.Method
		link.ConfidenceScore = score
	}
	if score > link.MaxScore {
		link.MaxScore = score
	}
	link.LastSeen = now
	return link
}

func methodLabel(c crawler.Candidate) string {
	if !c.Role.IsService() {
		return string(crawler.RoleMenu)
	}
	return string(c.Method)
}
