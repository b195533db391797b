package feed

import (
	"cmp"
	"time"
)

// Item is one article extracted from one feed, normalized into the
// canonical shape the rest of the pipeline operates on. Items are
// immutable after parsing.
type Item struct {
	Title          string    `json:"title"`
	Link           string    `json:"link"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"pubDate"`
	ContentSnippet string    `json:"contentSnippet,omitempty"`
	Content        string    `json:"content,omitempty"`
	FeedURL        string    `json:"feedUrl"`
}

// Metadata carries the WebSub discovery hints of a feed: every
// advertised hub plus the feed's canonical self URL.
type Metadata struct {
	HubURLs  []string
	SelfURL  string
	TopicURL string
}

// Result is the outcome of fetching and parsing one feed.
type Result struct {
	Items    []Item
	Metadata Metadata
}

// Article is an Item promoted to the presentation unit: it gets a
// stable id and a summary, and carries the relevance score once a
// query has been applied.
type Article struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Link           string    `json:"link"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"pubDate"`
	Summary        string    `json:"summary"`
	ContentSnippet string    `json:"contentSnippet,omitempty"`
	Content        string    `json:"content,omitempty"`
	FeedURL        string    `json:"feedUrl"`
	SearchScore    float64   `json:"searchScore,omitempty"`
}

func ArticleFromItem(item Item) Article {
	source := cmp.Or(item.Source, "unknown")

	return Article{
		ID:             item.Title + "::" + source + "::" + item.Link,
		Title:          item.Title,
		Link:           item.Link,
		Source:         source,
		PublishedAt:    item.PublishedAt,
		Summary:        cmp.Or(item.ContentSnippet, item.Content, item.Title),
		ContentSnippet: item.ContentSnippet,
		Content:        item.Content,
		FeedURL:        item.FeedURL,
	}
}
