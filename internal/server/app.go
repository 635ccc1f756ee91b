// Package server builds the application's dependencies and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/api"
	"github.com/bharatsindha/icon-media-web-crawler/internal/clock/system"
	"github.com/bharatsindha/icon-media-web-crawler/internal/config"
	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/extract"
	collyfetcher "github.com/bharatsindha/icon-media-web-crawler/internal/fetcher/colly"
	"github.com/bharatsindha/icon-media-web-crawler/internal/id/uuid"
	"github.com/bharatsindha/icon-media-web-crawler/internal/keyword"
	"github.com/bharatsindha/icon-media-web-crawler/internal/metrics"
	"github.com/bharatsindha/icon-media-web-crawler/internal/policy/ratelimit"
	"github.com/bharatsindha/icon-media-web-crawler/internal/reconcile"
	"github.com/bharatsindha/icon-media-web-crawler/internal/rules"
	"github.com/bharatsindha/icon-media-web-crawler/internal/storage/memory"
	pgstore "github.com/bharatsindha/icon-media-web-crawler/internal/storage/postgres"
	"github.com/bharatsindha/icon-media-web-crawler/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        crawler.Store
	clock        crawler.Clock
	orchestrator *worker.Orchestrator
	apiServer    *api.Server
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	ruleSet, err := loadRules(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		clock:  system.New(),
	}

	app.orchestrator, err = setupOrchestrator(cfg, ruleSet, store, app.clock, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.apiServer = api.NewServer(store, logger.Named("api"))
	return app, nil
}

func loadRules(cfg config.Config, logger *zap.Logger) (rules.Rules, error) {
	ruleSet, err := rules.Load(cfg.Keywords.RulesFile)
	if err != nil {
		return rules.Rules{}, fmt.Errorf("load keyword rules: %w", err)
	}
	ruleSet.Exclusions.Enabled = cfg.Keywords.FilterEnabled
	ruleSet.ServicePages.MaxPages = cfg.Crawler.MaxServicePages
	logger.Info("keyword rules loaded",
		zap.String("file", cfg.Keywords.RulesFile),
		zap.Bool("filter_enabled", ruleSet.Exclusions.Enabled),
		zap.Strings("exclusion_categories", ruleSet.Exclusions.CategoryNames()),
		zap.Int("max_service_pages", ruleSet.ServicePages.MaxPages),
	)
	return ruleSet, nil
}

func setupStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.DB.Provider {
	case config.ProviderMemory:
		logger.Warn("using in-memory store, results are lost on exit")
		return memory.NewStore(), nil
	default:
		store, err := pgstore.NewStore(ctx, pgstore.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime(),
			ApplySchema:     cfg.DB.ApplySchema,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres ping failed: %w", err)
		}
		logger.Info("postgres store initialized",
			zap.Int32("max_conns", cfg.DB.MaxConns),
			zap.Bool("apply_schema", cfg.DB.ApplySchema),
		)
		return store, nil
	}
}

func setupOrchestrator(
	cfg config.Config,
	ruleSet rules.Rules,
	store crawler.Store,
	clock crawler.Clock,
	logger *zap.Logger,
) (*worker.Orchestrator, error) {
	filter, err := keyword.NewFilter(ruleSet.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("keyword filter init failed: %w", err)
	}
	pages, err := extract.NewPageExtractor(keyword.NewValidator(ruleSet.Validation), ruleSet.ServicePages)
	if err != nil {
		return nil, fmt.Errorf("page extractor init failed: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.FetchTimeout(),
		MaxBodyBytes:  cfg.Crawler.MaxBodyBytes,
		MaxRetries:    cfg.Crawler.MaxRetries,
	}, logger.Named("fetcher"))
	logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.Crawler.UserAgent),
		zap.Bool("respect_robots", cfg.Crawler.RespectRobots),
		zap.Duration("timeout", cfg.Crawler.FetchTimeout()),
		zap.Int("max_retries", cfg.Crawler.MaxRetries),
	)

	minDelay, maxDelay := cfg.Crawler.RateLimitBounds()
	limiter := ratelimit.New(ratelimit.Config{MinDelay: minDelay, MaxDelay: maxDelay}, logger.Named("ratelimit"))
	logger.Info("rate limiter enabled",
		zap.Duration("min_delay", minDelay),
		zap.Duration("max_delay", maxDelay),
	)

	workerCfg := worker.Config{
		StaleAfter:      cfg.Crawler.StaleAfter(),
		RecrawlInterval: cfg.Crawler.RecrawlInterval(),
		StatsEvery:      cfg.Crawler.StatsEvery,
	}
	logger.Info("orchestrator config",
		zap.Duration("stale_after", workerCfg.StaleAfter),
		zap.Duration("recrawl_interval", workerCfg.RecrawlInterval),
		zap.Int("stats_every", workerCfg.StatsEvery),
	)

	return worker.New(
		store,
		fetcher,
		limiter,
		worker.Extractors{
			Menu:    extract.NewMenuExtractor(),
			Locator: extract.NewServicePageLocator(ruleSet.ServicePages),
			Pages:   pages,
		},
		reconcile.New(store, filter, clock, logger.Named("reconcile")),
		uuid.New(),
		clock,
		workerCfg,
		logger.Named("orchestrator"),
	), nil
}

// AddDomains normalizes hosts and registers them as pending domains. It
// returns the number of newly added domains.
func (a *App) AddDomains(ctx context.Context, hosts []string) (int, error) {
	normalized := make([]string, 0, len(hosts))
	for _, raw := range hosts {
		host, err := crawler.NormalizeHost(raw)
		if err != nil {
			a.logger.Warn("skipping invalid domain", zap.String("domain", raw), zap.Error(err))
			continue
		}
		normalized = append(normalized, host)
	}
	added, err := a.store.AddDomains(ctx, normalized, a.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("add domains: %w", err)
	}
	a.logger.Info("domains added", zap.Int("requested", len(hosts)), zap.Int("added", added))
	return added, nil
}

// CrawlDomain crawls a single registered domain immediately.
func (a *App) CrawlDomain(ctx context.Context, host string) (crawler.CrawlJob, error) {
	job, err := a.orchestrator.CrawlDomain(ctx, host)
	if err != nil {
		return job, fmt.Errorf("crawl %s: %w", host, err)
	}
	return job, nil
}

// RunCrawl processes pending domains until none remain or ctx is canceled.
func (a *App) RunCrawl(ctx context.Context) (worker.RunSummary, error) {
	summary, err := a.orchestrator.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("crawl run: %w", err)
	}
	return summary, nil
}

// Serve runs the status API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	a.logger.Info("http server stopped")
	return nil
}

// Close releases the store and flushes the logger.
func (a *App) Close() {
	a.store.Close()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}
