// Package worker drives the per-domain crawl: it claims domains, fetches the
// homepage and service pages, runs the extractors and commits the results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/extract"
	"github.com/bharatsindha/icon-media-web-crawler/internal/metrics"
	"github.com/bharatsindha/icon-media-web-crawler/internal/reconcile"
)

const (
	defaultStaleAfter      = time.Hour
	defaultRecrawlInterval = 30 * 24 * time.Hour
	defaultStatsEvery      = 10

	roleHomepage = "homepage"
)

var (
	errNotHTML     = errors.New("response is not html")
	errWaitStopped = errors.New("rate limit wait stopped")
)

// Config controls Orchestrator behavior.
type Config struct {
	StaleAfter      time.Duration
	RecrawlInterval time.Duration
	StatsEvery      int
}

// Store is the persistence the orchestrator needs.
type Store interface {
	crawler.DomainStore
	Statistics(ctx context.Context) (crawler.Statistics, error)
}

// Committer persists the candidates of one crawl.
type Committer interface {
	Commit(ctx context.Context, domain crawler.Domain, jobID string, candidates []crawler.Candidate) (reconcile.Result, error)
}

// Extractors bundles the document extractors.
type Extractors struct {
	Menu    *extract.MenuExtractor
	Locator *extract.ServicePageLocator
	Pages   *extract.PageExtractor
}

// RunSummary tallies the domains handled by one Run.
type RunSummary struct {
	StaleReset int64
	Processed  int
	Completed  int
	Failed     int
	Cancelled  int
	Errored    int
}

// Orchestrator processes domains one at a time.
type Orchestrator struct {
	store      Store
	fetcher    crawler.Fetcher
	limiter    crawler.RateLimiter
	extractors Extractors
	committer  Committer
	ids        crawler.IDGenerator
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs an Orchestrator.
func New(
	store Store,
	fetcher crawler.Fetcher,
	limiter crawler.RateLimiter,
	extractors Extractors,
	committer Committer,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.RecrawlInterval <= 0 {
		cfg.RecrawlInterval = defaultRecrawlInterval
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = defaultStatsEvery
	}
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		limiter:    limiter,
		extractors: extractors,
		committer:  committer,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run recovers stale domains, then processes pending domains until none are
// left or ctx is cancelled. A failing domain never stops the run.
func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var summary RunSummary
	reset, err := o.store.ResetStaleDomains(ctx, o.cfg.StaleAfter, o.clock.Now())
	if err != nil {
		return summary, fmt.Errorf("reset stale domains: %w", err)
	}
	summary.StaleReset = reset
	metrics.ObserveStaleReset(reset)
	if reset > 0 {
		o.logger.Warn("reset stale domains", zap.Int64("count", reset), zap.Duration("stale_after", o.cfg.StaleAfter))
	}

	pending, err := o.store.PendingCount(ctx)
	if err != nil {
		return summary, fmt.Errorf("count pending domains: %w", err)
	}
	o.logger.Info("crawl run starting", zap.Int64("pending", pending))

	for ctx.Err() == nil {
		domain, ok, err := o.store.ClaimNextPending(ctx, o.clock.Now())
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return summary, fmt.Errorf("claim next pending: %w", err)
		}
		if !ok {
			break
		}

		job, err := o.processDomain(ctx, domain)
		summary.Processed++
		switch {
		case err != nil:
			summary.Errored++
			o.logger.Error("domain processing error",
				zap.String("domain", domain.Host),
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		case job.Status == crawler.JobStatusCompleted:
			summary.Completed++
		case job.Status == crawler.JobStatusFailed:
			summary.Failed++
		case job.Status == crawler.JobStatusCancelled:
			summary.Cancelled++
		}

		if summary.Processed%o.cfg.StatsEvery == 0 {
			o.logStatistics(ctx)
		}
	}

	if ctx.Err() != nil {
		o.logger.Info("crawl run interrupted", zap.Int("processed", summary.Processed))
	}
	o.logStatistics(context.WithoutCancel(ctx))
	o.logger.Info("crawl run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int("errored", summary.Errored),
	)
	return summary, nil
}

// CrawlDomain crawls one domain on demand, whatever its current status.
func (o *Orchestrator) CrawlDomain(ctx context.Context, host string) (crawler.CrawlJob, error) {
	normalized, err := crawler.NormalizeHost(host)
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("normalize host %q: %w", host, err)
	}
	domain, err := o.store.GetDomainByHost(ctx, normalized)
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("get domain %s: %w", normalized, err)
	}
	domain, err = o.store.MarkDomainInProgress(ctx, domain.ID, o.clock.Now())
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("mark domain %s in progress: %w", normalized, err)
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	return o.processDomain(ctx, domain)
}

// processDomain runs one job against a domain already marked in_progress.
// The returned error reports bookkeeping failures; crawl failures are
// recorded on the job instead.
func (o *Orchestrator) processDomain(ctx context.Context, domain crawler.Domain) (crawler.CrawlJob, error) {
	persistCtx := context.WithoutCancel(ctx)
	logger := o.logger.With(zap.String("domain", domain.Host))

	id, err := o.ids.NewID()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("new job id: %w", err)
	}
	now := o.clock.Now()
	job := crawler.NewJob(id, domain.ID, now)
	if err := job.Start(now); err != nil {
		return job, err
	}
	if err := o.store.BeginJob(persistCtx, job); err != nil {
		return job, fmt.Errorf("begin job: %w", err)
	}
	logger = logger.With(zap.String("job_id", job.ID))

	if ctx.Err() != nil {
		return o.cancelJob(persistCtx, job, domain, "cancelled before homepage fetch", logger)
	}

	homepage := domain.HomepageURL()
	page, doc, err := o.fetchDocument(ctx, homepage, roleHomepage)
	if err != nil {
		if errors.Is(err, errWaitStopped) {
			return o.cancelJob(persistCtx, job, domain, "cancelled before homepage fetch", logger)
		}
		job.PagesFailed++
		logger.Warn("homepage fetch failed", zap.String("url", homepage), zap.Error(err))
		return o.failDomain(persistCtx, job, domain, fmt.Sprintf("homepage: %v", err), logger)
	}
	job.PagesCrawled++

	base := homepage
	if page.FinalURL != "" {
		base = page.FinalURL
	}
	candidates := menuCandidates(o.extractors.Menu.Extract(doc), base)

	for _, sp := range o.extractors.Locator.Locate(doc, base) {
		if ctx.Err() != nil {
			logger.Info("stopping page fetches after cancellation", zap.Int("pages_crawled", job.PagesCrawled))
			break
		}
		_, pageDoc, err := o.fetchDocument(ctx, sp.URL, string(sp.Role))
		if err != nil {
			if errors.Is(err, errWaitStopped) {
				break
			}
			job.PagesFailed++
			logger.Debug("service page skipped", zap.String("url", sp.URL), zap.Error(err))
			continue
		}
		job.PagesCrawled++
		candidates = append(candidates, o.extractors.Pages.Extract(pageDoc, sp.URL, sp.Role)...)
	}

	res, err := o.committer.Commit(persistCtx, domain, job.ID, candidates)
	if err != nil {
		// The domain stays in_progress; stale recovery requeues it.
		logger.Error("commit keywords failed", zap.Error(err))
		finishErr := o.finishJob(persistCtx, &job, func(t time.Time) error { return job.Fail(err.Error(), t) })
		return job, finishErr
	}
	job.NewKeywordsFound = res.NewKeywords

	if err := o.finishJob(persistCtx, &job, job.Complete); err != nil {
		return job, err
	}
	completedAt := *job.CompletedAt
	next := completedAt.Add(o.cfg.RecrawlInterval)
	if err := o.store.UpdateDomainStatus(persistCtx, crawler.DomainUpdate{
		DomainID:      domain.ID,
		Status:        crawler.DomainStatusCompleted,
		UpdatedAt:     completedAt,
		LastCrawled:   &completedAt,
		NextCrawlDate: &next,
	}); err != nil {
		return job, fmt.Errorf("mark domain completed: %w", err)
	}
	logger.Info("domain crawled",
		zap.Int("pages_crawled", job.PagesCrawled),
		zap.Int("pages_failed", job.PagesFailed),
		zap.Int("candidates", len(candidates)),
		zap.Int("new_keywords", res.NewKeywords),
		zap.Int("new_links", res.NewLinks),
	)
	return job, nil
}

// fetchDocument waits for the limiter, fetches url and parses it as HTML.
// The fetch itself is shielded from cancellation so an in-flight request
// completes.
func (o *Orchestrator) fetchDocument(ctx context.Context, url, role string) (crawler.Page, *goquery.Document, error) {
	if err := o.limiter.Wait(ctx, url); err != nil {
		return crawler.Page{}, nil, fmt.Errorf("%w: %w", errWaitStopped, err)
	}
	page, err := o.fetcher.Fetch(context.WithoutCancel(ctx), url)
	if err != nil {
		kind := string(crawler.FailureKindOf(err))
		if kind == "" {
			kind = "error"
		}
		metrics.ObservePage(role, kind, 0)
		return page, nil, err
	}
	if !isHTML(page) {
		metrics.ObservePage(role, "not_html", len(page.Body))
		return page, nil, fmt.Errorf("%s: %w", url, errNotHTML)
	}
	doc, err := extract.ParseDocument(page.Body)
	if err != nil {
		metrics.ObservePage(role, "parse_error", len(page.Body))
		return page, nil, err
	}
	metrics.ObservePage(role, "ok", len(page.Body))
	return page, doc, nil
}

func (o *Orchestrator) failDomain(ctx context.Context, job crawler.CrawlJob, domain crawler.Domain, msg string, logger *zap.Logger) (crawler.CrawlJob, error) {
	if err := o.finishJob(ctx, &job, func(t time.Time) error { return job.Fail(msg, t) }); err != nil {
		return job, err
	}
	if err := o.store.UpdateDomainStatus(ctx, crawler.DomainUpdate{
		DomainID:  domain.ID,
		Status:    crawler.DomainStatusFailed,
		UpdatedAt: *job.CompletedAt,
	}); err != nil {
		return job, fmt.Errorf("mark domain failed: %w", err)
	}
	logger.Warn("domain failed", zap.String("error", msg))
	return job, nil
}

func (o *Orchestrator) cancelJob(ctx context.Context, job crawler.CrawlJob, domain crawler.Domain, msg string, logger *zap.Logger) (crawler.CrawlJob, error) {
	if err := o.finishJob(ctx, &job, func(t time.Time) error { return job.Cancel(msg, t) }); err != nil {
		return job, err
	}
	if err := o.store.UpdateDomainStatus(ctx, crawler.DomainUpdate{
		DomainID:  domain.ID,
		Status:    crawler.DomainStatusPending,
		UpdatedAt: *job.CompletedAt,
	}); err != nil {
		return job, fmt.Errorf("return domain to pending: %w", err)
	}
	logger.Info("job cancelled, domain returned to pending")
	return job, nil
}

// finishJob applies a terminal transition to job and persists it.
func (o *Orchestrator) finishJob(ctx context.Context, job *crawler.CrawlJob, transition func(time.Time) error) error {
	if err := transition(o.clock.Now()); err != nil {
		return err
	}
	metrics.ObserveJob(string(job.Status))
	if err := o.store.FinalizeJob(ctx, *job); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

func (o *Orchestrator) logStatistics(ctx context.Context) {
	stats, err := o.store.Statistics(ctx)
	if err != nil {
		o.logger.Warn("load statistics failed", zap.Error(err))
		return
	}
	o.logger.Info("crawl statistics",
		zap.Int64("pending", stats.Pending),
		zap.Int64("in_progress", stats.InProgress),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("total", stats.Total),
		zap.Int64("total_keywords", stats.TotalKeywords),
		zap.Int64("active_jobs", stats.ActiveJobs),
	)
}

func menuCandidates(items []string, homepage string) []crawler.Candidate {
	out := make([]crawler.Candidate, 0, len(items))
	for _, text := range items {
		out = append(out, crawler.Candidate{
			Text:       text,
			SourceURL:  homepage,
			Confidence: crawler.MenuConfidence,
			Role:       crawler.RoleMenu,
		})
	}
	return out
}

func isHTML(page crawler.Page) bool {
	contentType := page.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(page.Body)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
