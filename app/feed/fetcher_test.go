package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	return c.entries[key], nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func TestFetcher_Fetch(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.Header().Set("Link", `<https://hub.example.com/>; rel="hub"`)
		w.Write([]byte("<rss></rss>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), nil, "TestAgent/1.0")

	raw, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if string(raw.Body) != "<rss></rss>" {
		t.Errorf("Unexpected body: %s", raw.Body)
	}
	if raw.Header.Get("Link") == "" {
		t.Error("Response headers should be preserved")
	}
	if receivedUA != "TestAgent/1.0" {
		t.Errorf("User-Agent not sent, got %q", receivedUA)
	}
}

func TestFetcher_Fetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.Client(), nil, "TestAgent/1.0")

	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Error("Expected error for 500 response")
	}
}

func TestFetcher_Fetch_CacheHit(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("<rss>fresh</rss>"))
	}))
	defer server.Close()

	cache := newFakeCache()
	fetcher := NewFetcher(server.Client(), cache, "TestAgent/1.0")

	first, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	second, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if requests != 1 {
		t.Errorf("Second fetch should be served from cache, server saw %d requests", requests)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("Cached body differs: %q vs %q", first.Body, second.Body)
	}
	if cache.sets != 1 {
		t.Errorf("Expected one cache write, got %d", cache.sets)
	}
}

func TestFetcher_Fetch_CacheKeyAndEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss></rss>"))
	}))
	defer server.Close()

	cache := newFakeCache()
	fetcher := NewFetcher(server.Client(), cache, "TestAgent/1.0")

	if _, err := fetcher.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	data, ok := cache.entries["rss-cache:"+server.URL]
	if !ok {
		t.Fatalf("Expected cache entry under rss-cache: prefix, have %v", keysOf(cache.entries))
	}

	var envelope RawFeed
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("Cache entry is not a JSON envelope: %v", err)
	}
	if string(envelope.Body) != "<rss></rss>" {
		t.Errorf("Envelope body mismatch: %q", envelope.Body)
	}
}

func TestFetcher_Fetch_MalformedCacheEntryIgnored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss>fresh</rss>"))
	}))
	defer server.Close()

	cache := newFakeCache()
	cache.entries["rss-cache:"+server.URL] = []byte("{broken json")

	fetcher := NewFetcher(server.Client(), cache, "TestAgent/1.0")

	raw, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(string(raw.Body), "fresh") {
		t.Errorf("Malformed cache entry should be bypassed, got %q", raw.Body)
	}
}

func keysOf(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	return keys
}
