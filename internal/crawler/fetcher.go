package crawler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/config"
	"github.com/lexharvest/lexharvest/internal/metrics"
)

// Fetcher retrieves a single page. Implementations handle retries and rate
// limiting internally.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// CollyFetcher implements Fetcher using the Colly collector with bounded
// retries, exponential backoff and per-host rate limiting. HTTP 404 is
// treated as permanent and returned without retrying; every other failure is
// transient and retried up to the configured attempt budget.
type CollyFetcher struct {
	cfg           config.FetcherConfig
	baseCollector *colly.Collector
	limiter       *hostLimiter
	logger        *zap.Logger

	// backoff is overridable in tests.
	backoff func(attempt int) time.Duration
}

// NewFetcher builds a CollyFetcher from configuration.
func NewFetcher(cfg config.FetcherConfig, logger *zap.Logger) *CollyFetcher {
	metrics.Init()
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(newHTTPTransport())

	return &CollyFetcher{
		cfg:           cfg,
		baseCollector: c,
		limiter:       newHostLimiter(cfg.FetchDelay()),
		logger:        logger,
		backoff:       defaultBackoff,
	}
}

func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Fetch retrieves rawURL, retrying transient failures with exponential
// backoff. The per-host rate limiter is consulted before every attempt.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	attempts := f.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastStatus int
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return FetchResult{}, fmt.Errorf("rate limit wait: %w", err)
		}

		result, status, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			metrics.ObserveFetch(rawURL, "success")
			return result, nil
		}
		lastStatus, lastErr = status, err

		if status == http.StatusNotFound {
			f.logger.Warn("page not found, giving up",
				zap.String("url", rawURL),
			)
			metrics.ObserveFetch(rawURL, "permanent")
			return FetchResult{}, &FetchError{
				URL:        rawURL,
				StatusCode: status,
				Permanent:  true,
				Attempts:   attempt,
				Err:        err,
			}
		}
		if ctx.Err() != nil {
			return FetchResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
		}

		f.logger.Warn("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err),
		)
		if attempt < attempts {
			metrics.ObserveFetchRetry(rawURL)
			if err := sleepCtx(ctx, f.backoff(attempt)); err != nil {
				return FetchResult{}, fmt.Errorf("fetch canceled: %w", err)
			}
		}
	}

	metrics.ObserveFetch(rawURL, "transient")
	return FetchResult{}, &FetchError{
		URL:        rawURL,
		StatusCode: lastStatus,
		Permanent:  false,
		Attempts:   attempts,
		Err:        lastErr,
	}
}

func (f *CollyFetcher) fetchOnce(ctx context.Context, rawURL string) (FetchResult, int, error) {
	var (
		result   FetchResult
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.FetchTimeout())

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = FetchResult{
			URL:        r.Request.URL.String(),
			Content:    string(r.Body),
			StatusCode: r.StatusCode,
		}
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return FetchResult{}, status, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return FetchResult{}, status, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		if fetchErr != nil {
			return FetchResult{}, status, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
		}
		return result, status, nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
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
