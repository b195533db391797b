package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mlitvin/newssift/app/feed"
)

type fakeLoader struct {
	mu    sync.Mutex
	items map[string][]feed.Item
	errs  map[string]error
	calls []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		items: make(map[string][]feed.Item),
		errs:  make(map[string]error),
	}
}

func (l *fakeLoader) LoadItems(ctx context.Context, feedURL string) ([]feed.Item, error) {
	l.mu.Lock()
	l.calls = append(l.calls, feedURL)
	l.mu.Unlock()

	if err, ok := l.errs[feedURL]; ok {
		return nil, err
	}
	return l.items[feedURL], nil
}

type fakeSummarizer struct {
	fn func(article feed.Article) string
}

func (s *fakeSummarizer) Summarize(ctx context.Context, article feed.Article) string {
	if s.fn != nil {
		return s.fn(article)
	}
	return "summary of " + article.Title
}

type fakeExtractor struct {
	content string
	err     error
}

func (e *fakeExtractor) FetchArticle(ctx context.Context, link string) (*feed.ExtractedArticle, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &feed.ExtractedArticle{Content: e.content}, nil
}

func newTestAggregator(loader Loader) *Aggregator {
	return New(loader, &fakeSummarizer{}, &fakeExtractor{err: errors.New("no extraction")})
}

func TestRun_TruncatesToFifteenFeeds(t *testing.T) {
	loader := newFakeLoader()
	feedURLs := make([]string, 17)
	for i := range feedURLs {
		url := fmt.Sprintf("https://feed%d.example.com/rss", i)
		feedURLs[i] = url
		loader.items[url] = []feed.Item{
			{Title: fmt.Sprintf("Story %d", i), Link: url + "/1", Source: url, PublishedAt: time.Now()},
		}
	}

	agg := newTestAggregator(loader)

	articles, warnings, err := agg.Run(context.Background(), feedURLs, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(loader.calls) != 15 {
		t.Errorf("Expected only the first 15 feeds to be fetched, got %d", len(loader.calls))
	}
	if len(articles) != 15 {
		t.Errorf("Expected 15 articles, got %d", len(articles))
	}

	found := false
	for _, warning := range warnings {
		if strings.Contains(warning, "Only the first 15 feeds") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected truncation warning, got %v", warnings)
	}
}

func TestRun_PerFeedFailuresBecomeWarnings(t *testing.T) {
	okFeed := "https://ok.example.com/rss"
	downFeed := "https://down.example.com/rss"

	loader := newFakeLoader()
	loader.items[okFeed] = []feed.Item{
		{Title: "Story", Link: "https://ok.example.com/1", Source: okFeed, PublishedAt: time.Now()},
	}
	loader.errs[downFeed] = errors.New("timed out after 10s")

	agg := newTestAggregator(loader)

	articles, warnings, err := agg.Run(context.Background(), []string{downFeed, okFeed}, "")
	if err != nil {
		t.Fatalf("One failing feed must not abort the batch: %v", err)
	}

	if len(articles) != 1 {
		t.Errorf("Expected 1 article, got %d", len(articles))
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", warnings)
	}
	if warnings[0] != downFeed+": timed out after 10s" {
		t.Errorf("Unexpected warning format: %q", warnings[0])
	}
}

func TestRun_TotalFailure(t *testing.T) {
	feedA := "https://a.example.com/rss"
	feedB := "https://b.example.com/rss"

	loader := newFakeLoader()
	loader.errs[feedA] = errors.New("connection refused")
	loader.errs[feedB] = errors.New("404 Not Found")

	agg := newTestAggregator(loader)

	articles, warnings, err := agg.Run(context.Background(), []string{feedA, feedB}, "")
	if !errors.Is(err, ErrNoStories) {
		t.Fatalf("Expected ErrNoStories, got %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("Expected no articles, got %d", len(articles))
	}
	if len(warnings) != 2 {
		t.Errorf("Expected per-feed warnings alongside the error, got %v", warnings)
	}
	// Warnings follow input order regardless of completion order
	if !strings.HasPrefix(warnings[0], feedA) || !strings.HasPrefix(warnings[1], feedB) {
		t.Errorf("Warnings out of input order: %v", warnings)
	}
}

func TestRun_DedupeAndFilterScenario(t *testing.T) {
	feedURL := "https://news.example.com/rss"

	loader := newFakeLoader()
	loader.items[feedURL] = []feed.Item{
		{Title: "AI breakthrough", Link: "https://news.example.com/1", Source: "news.example.com", PublishedAt: time.Now()},
		{Title: "AI breakthrough", Link: "https://news.example.com/dup", Source: "news.example.com", PublishedAt: time.Now()},
		{Title: "Economy update", Link: "https://news.example.com/2", Source: "news.example.com", PublishedAt: time.Now()},
	}

	agg := newTestAggregator(loader)

	articles, _, err := agg.Run(context.Background(), []string{feedURL}, "ai")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("Expected 1 article after dedupe and filter, got %d", len(articles))
	}
	if articles[0].Title != "AI breakthrough" {
		t.Errorf("Wrong article survived: %s", articles[0].Title)
	}
	if articles[0].SearchScore <= 0 {
		t.Errorf("Expected positive relevance score, got %f", articles[0].SearchScore)
	}
	if articles[0].Link != "https://news.example.com/1" {
		t.Errorf("First duplicate should win, got %s", articles[0].Link)
	}
}

func TestRun_SortsNewestFirst(t *testing.T) {
	feedURL := "https://news.example.com/rss"
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	loader := newFakeLoader()
	loader.items[feedURL] = []feed.Item{
		{Title: "Old story", Link: "https://news.example.com/old", Source: "news.example.com", PublishedAt: older},
		{Title: "New story", Link: "https://news.example.com/new", Source: "news.example.com", PublishedAt: older.Add(48 * time.Hour)},
	}

	agg := newTestAggregator(loader)

	articles, _, err := agg.Run(context.Background(), []string{feedURL}, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("Expected 2 articles, got %d", len(articles))
	}
	if articles[0].Title != "New story" {
		t.Errorf("Expected newest first, got %s", articles[0].Title)
	}
}

func TestRun_QueryMatchesGeneratedSummary(t *testing.T) {
	feedURL := "https://news.example.com/rss"

	loader := newFakeLoader()
	loader.items[feedURL] = []feed.Item{
		{Title: "Lab report", Link: "https://news.example.com/1", Source: "news.example.com", PublishedAt: time.Now()},
	}

	summarizer := &fakeSummarizer{fn: func(article feed.Article) string {
		return "Researchers demonstrate a quantum computing milestone."
	}}
	agg := New(loader, summarizer, &fakeExtractor{err: errors.New("no extraction")})

	articles, _, err := agg.Run(context.Background(), []string{feedURL}, "quantum")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("Summarization must run before filtering so generated text is searchable, got %d articles", len(articles))
	}
	if articles[0].Summary != "Researchers demonstrate a quantum computing milestone." {
		t.Errorf("Summary not attached: %q", articles[0].Summary)
	}
}

func TestRun_ExtractorUpgradesContent(t *testing.T) {
	feedURL := "https://news.example.com/rss"

	loader := newFakeLoader()
	loader.items[feedURL] = []feed.Item{
		{Title: "Story", Link: "https://news.example.com/1", Source: "news.example.com", PublishedAt: time.Now(), Content: "teaser"},
	}

	agg := New(loader, &fakeSummarizer{}, &fakeExtractor{content: "full readable body"})

	articles, _, err := agg.Run(context.Background(), []string{feedURL}, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if articles[0].Content != "full readable body" {
		t.Errorf("Extractor content should replace the feed teaser, got %q", articles[0].Content)
	}
}

func TestRun_ExtractorFailureKeepsArticle(t *testing.T) {
	feedURL := "https://news.example.com/rss"

	loader := newFakeLoader()
	loader.items[feedURL] = []feed.Item{
		{Title: "Story", Link: "https://news.example.com/1", Source: "news.example.com", PublishedAt: time.Now(), Content: "teaser"},
	}

	agg := newTestAggregator(loader)

	articles, _, err := agg.Run(context.Background(), []string{feedURL}, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(articles) != 1 {
		t.Fatalf("Extraction failure must not drop the article, got %d", len(articles))
	}
	if articles[0].Content != "teaser" {
		t.Errorf("Original content should survive extraction failure, got %q", articles[0].Content)
	}
}
