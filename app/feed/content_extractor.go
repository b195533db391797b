package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/readeck/go-readability"
)

// ExtractedArticle is the best-effort full-text extraction outcome.
type ExtractedArticle struct {
	Content     string
	Description string
}

type ContentExtractor struct {
	client    *http.Client
	userAgent string
}

func NewContentExtractor(client *http.Client, userAgent string) *ContentExtractor {
	return &ContentExtractor{client: client, userAgent: userAgent}
}

// FetchArticle downloads an article page and extracts its readable
// body. Failures are expected for paywalled or script-heavy pages and
// must never block item processing.
func (e *ContentExtractor) FetchArticle(ctx context.Context, link string) (*ExtractedArticle, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch article: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read article body: %w", err)
	}

	return e.Run(data)
}

// Run extracts the readable content from raw HTML.
func (e *ContentExtractor) Run(data []byte) (*ExtractedArticle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return nil, fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(article.Content))

	return &ExtractedArticle{
		Content:     article.Content,
		Description: strings.TrimSpace(article.Excerpt),
	}, nil
}
