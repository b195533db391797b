package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mlitvin/newssift/app/aggregator"
	"github.com/mlitvin/newssift/app/feed"
	"github.com/mlitvin/newssift/app/websub"
)

type AggregatorInterface interface {
	Run(ctx context.Context, feedURLs []string, query string) ([]feed.Article, []string, error)
}

var _ AggregatorInterface = (*aggregator.Aggregator)(nil)

type SubscriberInterface interface {
	HandleVerification(params url.Values) (int, string)
	HandleNotification(ctx context.Context, topicURL string, body []byte, header http.Header) error
	RefreshFeeds(ctx context.Context, feedURLs []string) ([]feed.Item, []string)
	ResolveTopicFromID(topicID string) string
}

var _ SubscriberInterface = (*websub.Subscriber)(nil)

type Handler struct {
	aggregator AggregatorInterface
	subscriber SubscriberInterface
	registry   *websub.Registry
	generator  *feed.Generator
	sources    []feed.Source
	baseURL    string
	version    string
}
