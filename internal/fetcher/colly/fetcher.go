// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
	"github.com/bharatsindha/icon-media-web-crawler/internal/metrics"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 10 * 1024 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
	MaxRetries    int
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	retry         retryPolicy
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects the outcome of one collector visit.
type fetchState struct {
	page       crawler.Page
	statusCode int
	err        error
}

// New builds a Fetcher. Collector settings are fixed here; each fetch clones
// the base collector only to attach its callbacks.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(newRobotsTransport(newHTTPTransport(), logger))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		retry:         newRetryPolicy(cfg.MaxRetries),
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch GETs url, retrying transient failures. Failures are always
// *crawler.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	if err := checkURL(url); err != nil {
		return crawler.Page{}, err
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return crawler.Page{}, classify(url, 0, err)
		}
		page, err := f.fetchOnce(ctx, url)
		if err == nil {
			return page, nil
		}
		if !f.retry.shouldRetry(err, attempt) || ctx.Err() != nil {
			return crawler.Page{}, err
		}
		kind := string(crawler.FailureKindOf(err))
		metrics.ObserveFetchRetry(kind)
		delay := f.retry.backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.String("kind", kind),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
		)
		if sleepErr := sleepWithContext(ctx, delay); sleepErr != nil {
			return crawler.Page{}, err
		}
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (crawler.Page, error) {
	start := time.Now()
	var state fetchState
	collector := f.buildCollector(ctx, start, &state)
	if err := f.runCollector(ctx, collector, url, &state); err != nil {
		return crawler.Page{}, classify(url, state.statusCode, err)
	}
	state.page.URL = url
	return state.page, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, start time.Time, state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.statusCode = r.StatusCode
		state.page = crawler.Page{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Request != nil && r.Request.URL != nil {
			state.page.FinalURL = r.Request.URL.String()
		}
		if r.Headers != nil {
			state.page.ContentType = r.Headers.Get("Content-Type")
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.statusCode = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		// The collector carries ctx, so Visit unwinds promptly; wait for it
		// before state is read.
		<-done
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
