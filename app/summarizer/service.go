package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/mlitvin/newssift/app/feed"
)

const (
	maxSummaryRunes   = 420
	fallbackSentences = 3

	cacheMaxEntries = 500
	cacheTTL        = 30 * time.Minute
)

const promptTemplate = `Summarize the following news article in 2-3 plain sentences. ` +
	`Do not use markdown, lists or headings. Keep it factual and neutral.

Title: %s

%s`

type cacheEntry struct {
	summary   string
	expiresAt time.Time
}

// Service produces short article summaries. When no model client is
// configured or the model call fails, it falls back to an extractive
// summary so aggregation never blocks on the model.
type Service struct {
	client Client
	model  string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewService(client Client, model string) *Service {
	return &Service{
		client: client,
		model:  model,
		cache:  make(map[string]cacheEntry),
	}
}

// Summarize returns a summary for the article, preferring the cached
// value, then the model, then the extractive fallback.
func (s *Service) Summarize(ctx context.Context, article feed.Article) string {
	if cached, ok := s.cacheGet(article.ID); ok {
		return cached
	}

	summary := s.generate(ctx, article)
	if summary == "" {
		summary = Fallback(article)
	}

	s.cachePut(article.ID, summary)

	return summary
}

func (s *Service) generate(ctx context.Context, article feed.Article) string {
	if s.client == nil {
		return ""
	}

	body := strings.TrimSpace(article.Content)
	if body == "" {
		body = strings.TrimSpace(article.ContentSnippet)
	}
	if body == "" {
		return ""
	}

	prompt := fmt.Sprintf(promptTemplate, article.Title, clampRunes(body, 6000))

	summary, err := s.client.GenerateText(ctx, s.model, prompt)
	if err != nil {
		slog.Warn("Summarization failed, using fallback", "article", article.Link, "error", err)
		return ""
	}

	return clampRunes(strings.TrimSpace(summary), maxSummaryRunes)
}

// Fallback builds an extractive summary from the first sentences of
// the available text.
func Fallback(article feed.Article) string {
	text := strings.TrimSpace(article.ContentSnippet)
	if text == "" {
		text = strings.TrimSpace(article.Content)
	}
	if text == "" {
		return article.Title
	}

	sentences := splitSentences(text)
	if len(sentences) > fallbackSentences {
		sentences = sentences[:fallbackSentences]
	}

	return clampRunes(strings.Join(sentences, " "), maxSummaryRunes)
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Sentence ends only when followed by whitespace or EOF, so
		// "U.S." and "3.14" stay intact.
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}

		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}

func clampRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func (s *Service) cacheGet(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.cache, key)
		return "", false
	}
	return entry.summary, true
}

func (s *Service) cachePut(key, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cache) >= cacheMaxEntries {
		s.evictLocked()
	}

	s.cache[key] = cacheEntry{
		summary:   summary,
		expiresAt: time.Now().Add(cacheTTL),
	}
}

// evictLocked drops expired entries first and falls back to removing
// the soonest-expiring entry when the cache is full of live ones.
func (s *Service) evictLocked() {
	now := time.Now()
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	if len(s.cache) < cacheMaxEntries {
		return
	}

	var oldestKey string
	var oldestExpiry time.Time
	for key, entry := range s.cache {
		if oldestKey == "" || entry.expiresAt.Before(oldestExpiry) {
			oldestKey = key
			oldestExpiry = entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(s.cache, oldestKey)
	}
}
