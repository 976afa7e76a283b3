// Package sources holds the adapters that fetch raw fountain records from
// the two upstream systems. Adapters normalize transport failures into the
// resilience error taxonomy; everything downstream is source-agnostic.
package sources

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/hydromap/fountains-server/internal/geospatial"
	"github.com/hydromap/fountains-server/internal/model"
	"github.com/hydromap/fountains-server/internal/resilience"
)

// Adapter fetches the raw fountain records of one source for a bounding
// box. Implementations return an empty, non-nil slice when nothing is
// found, and reject with a RateLimitedError distinguishable from other
// failures.
type Adapter interface {
	Source() model.Source
	FetchByBoundingBox(ctx context.Context, box geospatial.BBox) ([]model.SourceRecord, error)
}

// Options configures one upstream adapter.
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RatePerSec and Burst feed the per-adapter rate limiter.
	RatePerSec float64
	Burst      int
	Retry      resilience.RetryConfig
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "fountains-server/1.0"
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 1
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
}

// httpClient wraps net/http with the per-source rate limiter and maps
// failures onto the resilience taxonomy.
type httpClient struct {
	source  model.Source
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
}

func newHTTPClient(source model.Source, opts Options) *httpClient {
	opts.applyDefaults()
	return &httpClient{
		source: source,
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		opts:    opts,
	}
}

// do executes the request with rate limiting and retries, returning the
// response body. 429 responses become RateLimitedError; other transport or
// server failures become SourceUnavailableError.
func (c *httpClient) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	cfg := c.opts.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(string(c.source), "fetch")
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := build(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "build request")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, resilience.NewSourceUnavailable(c.source, err)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			return nil, resilience.NewRateLimited(c.source, retryAfter,
				eris.Errorf("http 429 from %s", req.URL.Host))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.NewSourceUnavailable(c.source,
				eris.Errorf("http %d from %s", resp.StatusCode, req.URL.Host))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewSourceUnavailable(c.source, eris.Wrap(err, "read body"))
		}
		return body, nil
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
