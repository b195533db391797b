package tasks

import (
	"context"

	"github.com/mlitvin/newssift/app/websub"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background task processing.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// SubscriberInterface is the slice of the WebSub subscriber that
// background tasks need.
type SubscriberInterface interface {
	EnsureSubscription(ctx context.Context, feedURL string) (websub.Subscription, error)
	RetrySubscription(ctx context.Context, topicURL string, attempt int)
}
