// Package main wires together the keyword crawler binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/config"
	"github.com/bharatsindha/icon-media-web-crawler/internal/logging"
	"github.com/bharatsindha/icon-media-web-crawler/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	domain := flag.String("domain", "", "Crawl a single registered domain and exit")
	add := flag.String("add", "", "Comma-separated domains to register as pending")
	serve := flag.Bool("serve", false, "Run the status API even when server.enabled is false")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *domain, *add, *serve || cfg.Server.Enabled); err != nil {
		logger.Error("keyword crawler failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, domain, add string, serve bool) error {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if hosts := splitHosts(add); len(hosts) > 0 {
		if _, err := app.AddDomains(ctx, hosts); err != nil {
			return err
		}
		if domain == "" && !serve {
			return nil
		}
	}

	serveErr := make(chan error, 1)
	if serve {
		go func() { serveErr <- app.Serve(ctx) }()
	} else {
		close(serveErr)
	}

	if domain != "" {
		job, err := app.CrawlDomain(ctx, domain)
		if err != nil {
			return err
		}
		logger.Info("domain crawl finished",
			zap.String("domain", domain),
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("pages_crawled", job.PagesCrawled),
			zap.Int("pages_failed", job.PagesFailed),
			zap.Int("new_keywords", job.NewKeywordsFound),
		)
	} else {
		summary, err := app.RunCrawl(ctx)
		if err != nil {
			return err
		}
		logger.Info("crawl run finished",
			zap.Int64("stale_reset", summary.StaleReset),
			zap.Int("processed", summary.Processed),
			zap.Int("completed", summary.Completed),
			zap.Int("failed", summary.Failed),
			zap.Int("cancelled", summary.Cancelled),
			zap.Int("errored", summary.Errored),
		)
	}

	if serve {
		logger.Info("crawl finished, status API keeps serving until interrupted")
	}
	return <-serveErr
}

func splitHosts(raw string) []string {
	var hosts []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			hosts = append(hosts, part)
		}
	}
	return hosts
}
