package api

import (
	"cmp"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mlitvin/newssift/app/aggregator"
	"github.com/mlitvin/newssift/app/cfg"
	"github.com/mlitvin/newssift/app/feed"
	"github.com/mlitvin/newssift/app/websub"
)

const (
	siteName        = "NewsSift"
	siteDescription = "Personal news aggregator with relevance filtering and WebSub push updates"

	// maxServedItems caps the published outer feeds, not the
	// aggregation API.
	maxServedItems = 50

	genericFetchError = "Unable to refresh feeds. Please try again."
	emptyFeedsError   = "Add at least one RSS feed URL."
)

// fetchRequest fields are loosely typed: a payload carrying the wrong
// shape is coerced instead of rejected, so a non-array feeds value
// falls through to the empty-feeds validation.
type fetchRequest struct {
	Feeds any `json:"feeds"`
	Query any `json:"query"`
}

func NewHandler(agg AggregatorInterface, subscriber SubscriberInterface,
	registry *websub.Registry, sources []feed.Source) *Handler {
	cfg := cfg.Get()

	return &Handler{
		aggregator: agg,
		subscriber: subscriber,
		registry:   registry,
		generator:  feed.NewGenerator(),
		sources:    sources,
		baseURL:    strings.TrimRight(cfg.BaseUrl, "/"),
		version:    cfg.Version,
	}
}

// PostFetch runs a one-shot aggregation over the feeds named in the
// request body, filtered by the optional query.
func (h *Handler) PostFetch(c *gin.Context) {
	var payload fetchRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": genericFetchError})
		return
	}

	feedURLs := coerceFeedURLs(payload.Feeds)
	if len(feedURLs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": emptyFeedsError})
		return
	}

	query, _ := payload.Query.(string)

	articles, warnings, err := h.aggregator.Run(c.Request.Context(), feedURLs, query)
	if err != nil {
		if errors.Is(err, aggregator.ErrNoStories) {
			c.JSON(http.StatusOK, gin.H{
				"error":    err.Error(),
				"warnings": nonNil(warnings),
			})
			return
		}
		slog.Error("Failed to process fetch request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericFetchError})
		return
	}

	if articles == nil {
		articles = []feed.Article{}
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"warnings": nonNil(warnings),
	})
}

// GetCallback answers hub verification requests with the plain-text
// challenge echo the protocol requires.
func (h *Handler) GetCallback(c *gin.Context) {
	status, body := h.subscriber.HandleVerification(c.Request.URL.Query())
	c.String(status, body)
}

// PostCallback ingests a hub content notification. The topic is
// resolved from the topicId query parameter, then the Link header,
// then the hub.topic parameter.
func (h *Handler) PostCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	topic := cmp.Or(
		h.subscriber.ResolveTopicFromID(c.Query("topicId")),
		websub.ResolveTopicFromHeaders(c.Request.Header),
		c.Query("hub.topic"),
	)
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to resolve topic"})
		return
	}

	if err := h.subscriber.HandleNotification(c.Request.Context(), topic, body, c.Request.Header); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetJSONFeed serves the aggregated stored items as a JSON Feed
// (version 1) document.
func (h *Handler) GetJSONFeed(c *gin.Context) {
	items, warnings := h.subscriber.RefreshFeeds(c.Request.Context(), h.requestedFeeds(c))
	unique := capItems(feed.Dedupe(items))

	entries := make([]gin.H, 0, len(unique))
	for _, item := range unique {
		entry := gin.H{
			"id":             cmp.Or(item.Link, item.Title),
			"url":            item.Link,
			"external_url":   item.Link,
			"title":          item.Title,
			"summary":        item.ContentSnippet,
			"content_html":   cmp.Or(item.Content, item.ContentSnippet, item.Title),
			"date_published": item.PublishedAt.Format(time.RFC3339),
		}
		if item.Source != "" {
			entry["authors"] = []gin.H{{"name": item.Source}}
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"version":       "https://jsonfeed.org/version/1",
		"title":         siteName,
		"description":   siteDescription,
		"home_page_url": h.baseURL,
		"feed_url":      h.baseURL + "/feed.json",
		"language":      "en-US",
		"hubs":          []string{},
		"warnings":      nonNil(warnings),
		"items":         entries,
		"attachments": []gin.H{
			{
				"url":       h.baseURL + "/rss",
				"mime_type": "application/rss+xml",
				"title":     "RSS",
			},
			{
				"url":       h.baseURL + "/outbox",
				"mime_type": "application/activity+json",
				"title":     "ActivityStreams Outbox",
			},
		},
	})
}

// GetRSS serves the aggregated stored items as RSS 2.0.
func (h *Handler) GetRSS(c *gin.Context) {
	items, warnings := h.subscriber.RefreshFeeds(c.Request.Context(), h.requestedFeeds(c))
	unique := capItems(feed.Dedupe(items))

	articles := make([]feed.Article, 0, len(unique))
	for _, item := range unique {
		articles = append(articles, feed.ArticleFromItem(item))
	}

	rss := h.generator.Run(siteName, h.baseURL, h.baseURL+"/rss", h.version, articles, warnings)

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Header("Cache-Control", "public, max-age=120")
	c.Header("Link", "<"+h.baseURL+"/feed.json>; rel=\"alternate\"; type=\"application/json\"")

	c.String(http.StatusOK, rss)
}

// GetOutbox serves the aggregated stored items as an ActivityStreams
// OrderedCollection of Create activities.
func (h *Handler) GetOutbox(c *gin.Context) {
	actorURL := h.baseURL + "/actor"
	outboxURL := h.baseURL + "/outbox"

	items, warnings := h.subscriber.RefreshFeeds(c.Request.Context(), h.requestedFeeds(c))
	unique := capItems(feed.Dedupe(items))

	ordered := make([]gin.H, 0, len(unique))
	for _, item := range unique {
		published := item.PublishedAt.Format(time.RFC3339)
		htmlContent := cmp.Or(item.Content, item.ContentSnippet, item.Title)

		ordered = append(ordered, gin.H{
			"id":        outboxURL + "#" + url.QueryEscape(item.Link),
			"type":      "Create",
			"actor":     actorURL,
			"published": published,
			"to":        []string{"https://www.w3.org/ns/activitystreams#Public"},
			"object": gin.H{
				"id":           item.Link,
				"type":         "Article",
				"url":          item.Link,
				"name":         item.Title,
				"attributedTo": item.Source,
				"published":    published,
				"content":      htmlContent,
				"contentMap":   gin.H{"en": htmlContent},
				"attachments": []gin.H{
					{
						"type":  "PropertyValue",
						"name":  "Summary",
						"value": cmp.Or(item.ContentSnippet, item.Content, item.Title),
					},
				},
			},
		})
	}

	c.Header("Content-Type", "application/activity+json")
	c.JSON(http.StatusOK, gin.H{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           outboxURL,
		"type":         "OrderedCollection",
		"totalItems":   len(ordered),
		"summary":      siteName + " Activity Outbox for " + h.baseURL,
		"orderedItems": ordered,
		"warnings":     nonNil(warnings),
		"links": gin.H{
			"jsonFeed": "/feed.json",
			"rss":      "/rss",
		},
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timestamp":     time.Now().In(time.Local).Format(time.RFC3339),
		"subscriptions": len(h.registry.List()),
		"preset_feeds":  len(h.sources),
	})
}

// APIListSubscriptions exposes the registry state for operators.
func (h *Handler) APIListSubscriptions(c *gin.Context) {
	subs := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

// requestedFeeds resolves the feed list for the outer endpoints: the
// comma-separated feeds query parameter, else the preset list.
func (h *Handler) requestedFeeds(c *gin.Context) []string {
	if param := c.Query("feeds"); param != "" {
		return normalizeFeedURLs(strings.Split(param, ","))
	}

	feedURLs := make([]string, 0, len(h.sources))
	for _, source := range h.sources {
		feedURLs = append(feedURLs, source.URL)
	}
	return feedURLs
}

// coerceFeedURLs reduces an arbitrary JSON value to the trimmed string
// entries of an array. Anything else yields an empty list.
func coerceFeedURLs(input any) []string {
	values, ok := input.([]any)
	if !ok {
		return nil
	}

	var raw []string
	for _, value := range values {
		if s, ok := value.(string); ok {
			raw = append(raw, s)
		}
	}
	return normalizeFeedURLs(raw)
}

func normalizeFeedURLs(raw []string) []string {
	var feedURLs []string
	for _, value := range raw {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			feedURLs = append(feedURLs, trimmed)
		}
	}
	return feedURLs
}

func capItems(items []feed.Item) []feed.Item {
	if len(items) > maxServedItems {
		return items[:maxServedItems]
	}
	return items
}

func nonNil(warnings []string) []string {
	if warnings == nil {
		return []string{}
	}
	return warnings
}
