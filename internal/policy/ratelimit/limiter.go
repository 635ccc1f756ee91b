// Package ratelimit spaces outbound fetches with a randomized politeness delay.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bharatsindha/icon-media-web-crawler/internal/metrics"
)

// Config holds the delay bounds between two consecutive fetches.
type Config struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Limiter enforces a delay drawn uniformly from [MinDelay, MaxDelay] between
// any two fetches. The token bucket holds a single token and its refill
// interval is redrawn before every wait.
type Limiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minDelay  time.Duration
	maxDelay  time.Duration
	randFloat func() float64
	logger    *zap.Logger
}

// New creates a Limiter. A zero MinDelay disables spacing.
func New(cfg Config, logger *zap.Logger) *Limiter {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDelay < 0 {
		cfg.MinDelay = 0
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Inf, 1),
		minDelay:  cfg.MinDelay,
		maxDelay:  cfg.MaxDelay,
		randFloat: rand.Float64,
		logger:    logger,
	}
}

// Wait blocks until the next fetch of url may start, respecting the context.
func (l *Limiter) Wait(ctx context.Context, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delay := l.nextDelay()
	if delay > 0 {
		l.limiter.SetLimit(rate.Every(delay))
	}

	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	waited := time.Since(start)
	if waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
		l.logger.Debug("rate limited fetch",
			zap.String("site", metrics.SanitizeSite(url)),
			zap.Duration("waited", waited),
			zap.Duration("interval", delay),
		)
	}
	return nil
}

// nextDelay draws the interval for the upcoming fetch.
func (l *Limiter) nextDelay() time.Duration {
	span := l.maxDelay - l.minDelay
	if span <= 0 {
		return l.minDelay
	}
	return l.minDelay + time.Duration(l.randFloat()*float64(span))
}
