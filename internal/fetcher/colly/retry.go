package collyfetcher

import (
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/bharatsindha/icon-media-web-crawler/internal/crawler"
)

// retryPolicy retries transient fetch failures with jittered exponential backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newRetryPolicy(maxRetries int) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retryPolicy{
		maxRetries: maxRetries,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

// shouldRetry reports whether a failure on the given zero-based attempt earns
// another try.
func (p retryPolicy) shouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	var fetchErr *crawler.FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return fetchErr.Retryable()
}

// backoff returns the wait before attempt+1: half the capped exponential delay
// plus up to the same again in jitter.
func (p retryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	return time.Duration(delay/2) + randomJitter(time.Duration(delay)/2)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
