package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	fetchTimeout    = 10 * time.Second
	acceptHeader    = "application/rss+xml, application/xml, text/xml, */*;q=0.8"
	cacheKeyPrefix  = "rss-cache:"
	defaultCacheTTL = 5 * time.Minute
)

// ResponseCache is the optional response-cache collaborator. A nil
// cache disables caching; the fetcher behaves identically, just slower.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RawFeed is the unparsed outcome of one feed fetch. Headers are kept
// because WebSub hub discovery also inspects the HTTP Link header.
type RawFeed struct {
	Body   []byte      `json:"body"`
	Header http.Header `json:"header"`
}

type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	cache     ResponseCache
	cacheTTL  time.Duration
	userAgent string
}

func NewFetcher(client *http.Client, cache ResponseCache, userAgent string) *Fetcher {
	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
		cache:     cache,
		cacheTTL:  defaultCacheTTL,
		userAgent: userAgent,
	}
}

// Fetch retrieves the raw feed bytes plus response headers. The request
// is bounded by a 10 second deadline and aborted when ctx is cancelled.
// No retries happen at this layer.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (*RawFeed, error) {
	if cached := f.readCache(ctx, feedURL); cached != nil {
		return cached, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("timed out after %s", fetchTimeout)
		}
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch feed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	raw := &RawFeed{Body: body, Header: resp.Header}
	f.writeCache(ctx, feedURL, raw)

	return raw, nil
}

func (f *Fetcher) readCache(ctx context.Context, feedURL string) *RawFeed {
	if f.cache == nil {
		return nil
	}

	data, err := f.cache.Get(ctx, cacheKeyPrefix+feedURL)
	if err != nil {
		slog.Warn("Failed to read feed cache", "feed_url", feedURL, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}

	var raw RawFeed
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("Discarding malformed feed cache entry", "feed_url", feedURL, "error", err)
		return nil
	}

	return &raw
}

func (f *Fetcher) writeCache(ctx context.Context, feedURL string, raw *RawFeed) {
	if f.cache == nil {
		return
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return
	}

	if err := f.cache.Set(ctx, cacheKeyPrefix+feedURL, data, f.cacheTTL); err != nil {
		slog.Warn("Failed to write feed cache", "feed_url", feedURL, "error", err)
	}
}
