package tasks

import (
	"context"
	"log/slog"
)

// RetrySubscriptionTask re-issues the hub handshake for a
// subscription that is still pending verification.
type RetrySubscriptionTask struct {
	Task
	subscriber SubscriberInterface
	topicURL   string
	attempt    int
}

func NewRetrySubscriptionTask(topicURL, feedURL string, attempt int, subscriber SubscriberInterface) *RetrySubscriptionTask {
	return &RetrySubscriptionTask{
		Task:       NewTask(TaskTypeRetrySubscription, feedURL),
		subscriber: subscriber,
		topicURL:   topicURL,
		attempt:    attempt,
	}
}

func (t *RetrySubscriptionTask) Execute(ctx context.Context) error {
	slog.Debug("Retrying subscription handshake", "topic", t.topicURL, "attempt", t.attempt)

	t.subscriber.RetrySubscription(ctx, t.topicURL, t.attempt)

	return nil
}
