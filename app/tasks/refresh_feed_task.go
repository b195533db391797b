package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// RefreshFeedTask polls one preset feed: fetches it, stores its items
// and keeps its WebSub subscription alive.
type RefreshFeedTask struct {
	Task
	subscriber SubscriberInterface
}

func NewRefreshFeedTask(feedURL string, subscriber SubscriberInterface) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:       NewTask(TaskTypeRefreshFeed, feedURL),
		subscriber: subscriber,
	}
}

func (t *RefreshFeedTask) Execute(ctx context.Context) error {
	sub, err := t.subscriber.EnsureSubscription(ctx, t.FeedURL)
	if err != nil {
		return fmt.Errorf("failed to refresh feed %s: %w", t.FeedURL, err)
	}

	slog.Debug("Feed refreshed",
		"feed", t.FeedURL,
		"mode", sub.Mode,
		"stored_items", sub.ItemCount)

	return nil
}
