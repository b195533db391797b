package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// RenewSubscriptionTask re-subscribes a feed whose lease has lapsed.
type RenewSubscriptionTask struct {
	Task
	subscriber SubscriberInterface
}

func NewRenewSubscriptionTask(feedURL string, subscriber SubscriberInterface) *RenewSubscriptionTask {
	return &RenewSubscriptionTask{
		Task:       NewTask(TaskTypeRenewSubscription, feedURL),
		subscriber: subscriber,
	}
}

func (t *RenewSubscriptionTask) Execute(ctx context.Context) error {
	sub, err := t.subscriber.EnsureSubscription(ctx, t.FeedURL)
	if err != nil {
		return fmt.Errorf("failed to renew subscription for %s: %w", t.FeedURL, err)
	}

	slog.Info("Subscription renewal requested",
		"feed", t.FeedURL,
		"topic", sub.TopicURL,
		"mode", sub.Mode)

	return nil
}
