package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mlitvin/newssift/app/feed"
)

// maxFeeds bounds one aggregation request. Excess feeds are dropped
// with a warning instead of an error.
const maxFeeds = 15

// summarizeConcurrency bounds parallel article extraction and
// summarization within one request.
const summarizeConcurrency = 10

// ErrNoStories is returned when every requested feed failed or came
// back empty. The HTTP layer reports it in the response body, not as
// an HTTP error.
var ErrNoStories = errors.New("No stories could be retrieved. Check the feed URLs and try again.")

// Loader fetches and parses one feed into normalized items.
type Loader interface {
	LoadItems(ctx context.Context, feedURL string) ([]feed.Item, error)
}

// Summarizer produces a short summary for an article. It must not
// fail; implementations fall back to extractive text.
type Summarizer interface {
	Summarize(ctx context.Context, article feed.Article) string
}

// Extractor fetches the readable full text of an article page.
type Extractor interface {
	FetchArticle(ctx context.Context, link string) (*feed.ExtractedArticle, error)
}

// Aggregator runs the fetch, dedupe, summarize and filter pipeline
// over a set of feeds.
type Aggregator struct {
	loader     Loader
	summarizer Summarizer
	extractor  Extractor
}

func New(loader Loader, summarizer Summarizer, extractor Extractor) *Aggregator {
	return &Aggregator{
		loader:     loader,
		summarizer: summarizer,
		extractor:  extractor,
	}
}

// Run aggregates the given feeds and filters the result by the query.
// Per-feed failures are reduced to warnings; only a fully empty
// harvest is an error. Results and warnings follow the input feed
// order, not fetch completion order.
func (a *Aggregator) Run(ctx context.Context, feedURLs []string, query string) ([]feed.Article, []string, error) {
	var warnings []string

	if len(feedURLs) > maxFeeds {
		warnings = append(warnings, fmt.Sprintf("Only the first %d feeds were processed.", maxFeeds))
		feedURLs = feedURLs[:maxFeeds]
	}

	perFeedItems := make([][]feed.Item, len(feedURLs))
	perFeedErrs := make([]error, len(feedURLs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, feedURL := range feedURLs {
		group.Go(func() error {
			perFeedItems[i], perFeedErrs[i] = a.loader.LoadItems(groupCtx, feedURL)
			return nil
		})
	}
	group.Wait()

	var collected []feed.Article
	for i, feedURL := range feedURLs {
		if perFeedErrs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %s", feedURL, perFeedErrs[i].Error()))
			continue
		}
		for _, item := range perFeedItems[i] {
			collected = append(collected, feed.ArticleFromItem(item))
		}
	}

	if len(collected) == 0 {
		return nil, warnings, ErrNoStories
	}

	unique := feed.DedupeArticles(collected)

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].PublishedAt.After(unique[j].PublishedAt)
	})

	summarized := a.summarizeAll(ctx, unique)

	filtered := feed.FilterByQuery(summarized, feed.ParseQueryTerms(query))

	return filtered, warnings, nil
}

// summarizeAll enriches every candidate concurrently. A single
// article's extraction or summarization failure keeps the article
// with its existing text.
func (a *Aggregator) summarizeAll(ctx context.Context, articles []feed.Article) []feed.Article {
	out := make([]feed.Article, len(articles))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(summarizeConcurrency)

	for i, article := range articles {
		group.Go(func() error {
			out[i] = a.summarizeOne(groupCtx, article)
			return nil
		})
	}
	group.Wait()

	return out
}

func (a *Aggregator) summarizeOne(ctx context.Context, article feed.Article) feed.Article {
	if a.extractor != nil && article.Link != "" {
		extracted, err := a.extractor.FetchArticle(ctx, article.Link)
		if err != nil {
			slog.Debug("Article extraction failed", "link", article.Link, "error", err)
		} else if extracted.Content != "" {
			article.Content = extracted.Content
			if article.ContentSnippet == "" {
				article.ContentSnippet = extracted.Description
			}
		}
	}

	article.Summary = a.summarizer.Summarize(ctx, article)

	return article
}
