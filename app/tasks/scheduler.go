package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mlitvin/newssift/app/cfg"
	"github.com/mlitvin/newssift/app/feed"
	"github.com/mlitvin/newssift/app/websub"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	registry     *websub.Registry
	subscriber   SubscriberInterface
	sources      []feed.Source
	interval     time.Duration
	pollInterval time.Duration
	workerCount  int
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	taskQueue    chan TaskInterface

	// Accessed only from the ticker goroutine.
	nextRefreshAt     map[string]time.Time
	handshakeAttempts map[string]int
}

func NewScheduler(registry *websub.Registry, subscriber SubscriberInterface, sources []feed.Source) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		registry:          registry,
		subscriber:        subscriber,
		sources:           sources,
		interval:          time.Duration(cfg.SchedulerInterval) * time.Second,
		pollInterval:      time.Duration(cfg.PollInterval) * time.Second,
		workerCount:       cfg.WorkerCount,
		ctx:               ctx,
		cancel:            cancel,
		taskQueue:         make(chan TaskInterface, 300),
		nextRefreshAt:     make(map[string]time.Time),
		handshakeAttempts: make(map[string]int),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	if len(s.sources) == 0 {
		slog.Debug("No preset feeds configured")
		return
	}

	slog.Debug("Scheduling initial refresh for preset feeds", "count", len(s.sources))

	for _, source := range s.sources {
		task := NewRefreshFeedTask(source.URL, s.subscriber)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "feed", source.URL, "error", err)
			continue
		}
		s.nextRefreshAt[source.URL] = time.Now().Add(s.pollInterval)
	}
}

func (s *Scheduler) enqueueTasks() {
	now := time.Now()

	for _, sub := range s.registry.ExpireOverdue(now) {
		slog.Info("Subscription lease expired", "topic", sub.TopicURL, "feed", sub.FeedURL)

		task := NewRenewSubscriptionTask(sub.FeedURL, s.subscriber)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RenewSubscriptionTask", "feed", sub.FeedURL, "error", err)
		}
	}

	for _, source := range s.sources {
		if next, ok := s.nextRefreshAt[source.URL]; ok && next.After(now) {
			slog.Debug("Feed not due for refresh yet", "feed", source.URL, "next_refresh_at", next)
			continue
		}

		task := NewRefreshFeedTask(source.URL, s.subscriber)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RefreshFeedTask", "feed", source.URL, "error", err)
			continue
		}
		s.nextRefreshAt[source.URL] = now.Add(s.pollInterval)
	}

	for _, sub := range s.registry.List() {
		if sub.Mode != websub.ModePending {
			delete(s.handshakeAttempts, sub.TopicID)
			continue
		}

		attempt := s.handshakeAttempts[sub.TopicID]
		s.handshakeAttempts[sub.TopicID] = attempt + 1

		task := NewRetrySubscriptionTask(sub.TopicURL, sub.FeedURL, attempt, s.subscriber)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue RetrySubscriptionTask", "topic", sub.TopicURL, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedURL(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}
