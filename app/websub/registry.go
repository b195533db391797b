package websub

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mlitvin/newssift/app/feed"
)

// Subscription modes. A subscription starts pending, becomes active
// once the hub verifies the callback, and expires when the lease runs
// out without renewal.
const (
	ModePending = "pending"
	ModeActive  = "active"
	ModeExpired = "expired"
)

// maxStoredItems bounds per-topic retention. Oldest items by published
// date are evicted first.
const maxStoredItems = 200

// Subscription is the public snapshot of one topic's state.
type Subscription struct {
	TopicID         string    `json:"topicId"`
	TopicURL        string    `json:"topicUrl"`
	FeedURL         string    `json:"feedUrl"`
	HubURLs         []string  `json:"hubUrls"`
	Mode            string    `json:"mode"`
	Secret          string    `json:"-"`
	VerifyToken     string    `json:"-"`
	LeaseSeconds    int       `json:"leaseSeconds"`
	ExpiresAt       time.Time `json:"expiresAt,omitzero"`
	LastHandshakeAt time.Time `json:"lastHandshakeAt,omitzero"`
	LastPushAt      time.Time `json:"lastPushAt,omitzero"`
	CreatedAt       time.Time `json:"createdAt"`
	ItemCount       int       `json:"itemCount"`
}

type subscription struct {
	Subscription

	items map[string]feed.Item
}

// UpsertParams carries the per-feed overrides applied on registration.
type UpsertParams struct {
	Secret       string
	LeaseSeconds int
}

// Registry is the in-memory WebSub subscription store. All state is
// lost on restart; subscriptions are re-established on the next
// refresh cycle.
type Registry struct {
	mu     sync.Mutex
	topics map[string]*subscription
}

func NewRegistry() *Registry {
	return &Registry{
		topics: make(map[string]*subscription),
	}
}

// TopicID derives the stable callback identifier for a topic URL.
func TopicID(topicURL string) string {
	sum := sha256.Sum256([]byte(topicURL))
	return hex.EncodeToString(sum[:])
}

func newVerifyToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate verify token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Upsert registers a topic or updates an existing registration. An
// existing subscription keeps its mode, verify token and stored items
// so that re-registering an active topic is a no-op for its state.
// Hub URLs are merged as a set, preserving discovery order.
func (r *Registry) Upsert(topicURL, feedURL string, hubURLs []string, params UpsertParams) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := TopicID(topicURL)

	sub, ok := r.topics[id]
	if !ok {
		token, err := newVerifyToken()
		if err != nil {
			return Subscription{}, err
		}

		sub = &subscription{
			Subscription: Subscription{
				TopicID:     id,
				TopicURL:    topicURL,
				Mode:        ModePending,
				VerifyToken: token,
				CreatedAt:   time.Now(),
			},
			items: make(map[string]feed.Item),
		}
		r.topics[id] = sub
	}

	sub.FeedURL = feedURL
	for _, hub := range hubURLs {
		if hub != "" && !slices.Contains(sub.HubURLs, hub) {
			sub.HubURLs = append(sub.HubURLs, hub)
		}
	}
	if params.Secret != "" {
		sub.Secret = params.Secret
	}
	if params.LeaseSeconds > 0 {
		sub.LeaseSeconds = params.LeaseSeconds
	}

	return r.snapshotLocked(sub), nil
}

// Get returns the subscription for a topic URL.
func (r *Registry) Get(topicURL string) (Subscription, bool) {
	return r.GetByID(TopicID(topicURL))
}

// GetByID returns the subscription for a callback identifier.
func (r *Registry) GetByID(topicID string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.topics[topicID]
	if !ok {
		return Subscription{}, false
	}
	return r.snapshotLocked(sub), true
}

// List returns all subscriptions ordered by topic URL.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]Subscription, 0, len(r.topics))
	for _, sub := range r.topics {
		subs = append(subs, r.snapshotLocked(sub))
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].TopicURL < subs[j].TopicURL
	})

	return subs
}

// SetMode transitions a subscription to the given mode.
func (r *Registry) SetMode(topicID, mode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.topics[topicID]
	if !ok {
		return false
	}
	sub.Mode = mode
	return true
}

// RecordHandshake stamps the time of the latest hub handshake attempt.
func (r *Registry) RecordHandshake(topicID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.topics[topicID]; ok {
		sub.LastHandshakeAt = time.Now()
	}
}

// MarkPushed stamps the time of the latest hub content notification.
func (r *Registry) MarkPushed(topicID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.topics[topicID]; ok {
		sub.LastPushAt = time.Now()
	}
}

// Activate marks a subscription active with the lease granted by the
// hub.
func (r *Registry) Activate(topicID string, leaseSeconds int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.topics[topicID]
	if !ok {
		return false
	}

	sub.Mode = ModeActive
	if leaseSeconds > 0 {
		sub.LeaseSeconds = leaseSeconds
	}
	if sub.LeaseSeconds > 0 {
		sub.ExpiresAt = time.Now().Add(time.Duration(sub.LeaseSeconds) * time.Second)
	}

	return true
}

// ExpireOverdue flips active subscriptions whose lease has lapsed to
// expired and returns their snapshots for renewal scheduling.
func (r *Registry) ExpireOverdue(now time.Time) []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Subscription
	for _, sub := range r.topics {
		if sub.Mode != ModeActive || sub.ExpiresAt.IsZero() || now.Before(sub.ExpiresAt) {
			continue
		}
		sub.Mode = ModeExpired
		expired = append(expired, r.snapshotLocked(sub))
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].TopicURL < expired[j].TopicURL
	})

	return expired
}

// StoreItems ingests items pushed for a topic, keyed by link (or title
// and date when the link is empty). Known keys are overwritten so the
// stored copy always reflects the most recent fetch or push. Oldest
// items past the retention cap are evicted. Returns the number of new
// items.
func (r *Registry) StoreItems(topicID string, items []feed.Item) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.topics[topicID]
	if !ok {
		return 0
	}

	added := 0
	for _, item := range items {
		key := item.Link
		if key == "" {
			key = item.Title + "::" + item.PublishedAt.Format(time.RFC3339)
		}
		if _, exists := sub.items[key]; !exists {
			added++
		}
		sub.items[key] = item
	}

	if len(items) > 0 {
		sub.LastPushAt = time.Now()
		r.evictLocked(sub)
	}

	return added
}

// Aggregated returns the stored items for a set of feed URLs, newest
// first.
func (r *Registry) Aggregated(feedURLs []string) []feed.Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[string]bool, len(feedURLs))
	for _, u := range feedURLs {
		wanted[u] = true
	}

	var items []feed.Item
	for _, sub := range r.topics {
		if !wanted[sub.FeedURL] && !wanted[sub.TopicURL] {
			continue
		}
		for _, item := range sub.items {
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})

	return items
}

func (r *Registry) evictLocked(sub *subscription) {
	if len(sub.items) <= maxStoredItems {
		return
	}

	type keyed struct {
		key  string
		item feed.Item
	}

	all := make([]keyed, 0, len(sub.items))
	for key, item := range sub.items {
		all = append(all, keyed{key: key, item: item})
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].item.PublishedAt.After(all[j].item.PublishedAt)
	})

	for _, entry := range all[maxStoredItems:] {
		delete(sub.items, entry.key)
	}
}

func (r *Registry) snapshotLocked(sub *subscription) Subscription {
	snapshot := sub.Subscription
	snapshot.HubURLs = slices.Clone(sub.HubURLs)
	snapshot.ItemCount = len(sub.items)
	return snapshot
}
