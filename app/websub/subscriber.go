package websub

import (
	"cmp"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlitvin/newssift/app/feed"
)

var (
	ErrUnknownTopic     = errors.New("unknown topic")
	ErrMissingSignature = errors.New("missing X-Hub-Signature header")
	ErrInvalidSignature = errors.New("invalid signature")
)

// verifyRetries bounds the hub handshake re-attempts for a
// subscription that never turned active.
const verifyRetries = 2

var selfLinkPattern = regexp.MustCompile(`(?i)<([^>]+)>;\s*rel="self"`)

// FeedLoader fetches and parses one feed with its discovery metadata.
type FeedLoader interface {
	Load(ctx context.Context, feedURL string) (*feed.Result, error)
}

// Subscriber drives the subscription lifecycle against remote hubs
// and ingests their callbacks into the registry.
type Subscriber struct {
	registry     *Registry
	loader       FeedLoader
	client       *http.Client
	baseURL      string
	credentials  map[string]UpsertParams
	defaultLease int
}

func NewSubscriber(registry *Registry, loader FeedLoader, client *http.Client, baseURL string, sources []feed.Source, defaultLease int) *Subscriber {
	credentials := make(map[string]UpsertParams, len(sources))
	for _, source := range sources {
		credentials[source.URL] = UpsertParams{
			Secret:       source.Secret,
			LeaseSeconds: source.LeaseSeconds,
		}
	}

	return &Subscriber{
		registry:     registry,
		loader:       loader,
		client:       client,
		baseURL:      strings.TrimRight(baseURL, "/"),
		credentials:  credentials,
		defaultLease: defaultLease,
	}
}

// EnsureSubscription fetches a feed, registers its topic and performs
// the hub handshake when one is needed. Fetched items are always
// stored, so feeds without a hub still contribute content. A feed
// without a hub ends up expired, which is a valid terminal mode, not
// an error.
func (s *Subscriber) EnsureSubscription(ctx context.Context, feedURL string) (Subscription, error) {
	result, err := s.loader.Load(ctx, feedURL)
	if err != nil {
		return Subscription{}, err
	}

	topicURL := cmp.Or(result.Metadata.TopicURL, result.Metadata.SelfURL, feedURL)

	params := s.credentials[feedURL]
	if params.LeaseSeconds == 0 {
		params.LeaseSeconds = s.defaultLease
	}

	sub, err := s.registry.Upsert(topicURL, feedURL, result.Metadata.HubURLs, params)
	if err != nil {
		return Subscription{}, err
	}

	s.registry.StoreItems(sub.TopicID, result.Items)

	if len(sub.HubURLs) == 0 {
		s.registry.SetMode(sub.TopicID, ModeExpired)
		s.registry.RecordHandshake(sub.TopicID)
		return s.currentState(sub.TopicID), nil
	}

	if sub.Mode == ModeActive && !sub.ExpiresAt.IsZero() && sub.ExpiresAt.After(time.Now()) {
		return s.currentState(sub.TopicID), nil
	}

	s.handshake(ctx, sub)

	return s.currentState(sub.TopicID), nil
}

// RetrySubscription re-issues the hub handshake for a subscription
// that has not become active. Once the retry budget is exhausted the
// subscription is marked expired.
func (s *Subscriber) RetrySubscription(ctx context.Context, topicURL string, attempt int) {
	sub, ok := s.registry.Get(topicURL)
	if !ok || sub.Mode == ModeActive {
		return
	}

	if attempt >= verifyRetries || len(sub.HubURLs) == 0 {
		s.registry.SetMode(sub.TopicID, ModeExpired)
		return
	}

	s.handshake(ctx, sub)
}

func (s *Subscriber) handshake(ctx context.Context, sub Subscription) {
	err := s.requestSubscription(ctx, sub)
	s.registry.RecordHandshake(sub.TopicID)

	if err != nil {
		slog.Warn("WebSub subscription request failed",
			"topic", sub.TopicURL,
			"hub", sub.HubURLs[0],
			"error", err)
		s.registry.SetMode(sub.TopicID, ModeExpired)
		return
	}

	s.registry.SetMode(sub.TopicID, ModePending)
}

func (s *Subscriber) requestSubscription(ctx context.Context, sub Subscription) error {
	form := url.Values{}
	form.Set("hub.mode", "subscribe")
	form.Set("hub.topic", sub.TopicURL)
	form.Set("hub.callback", s.CallbackURL(sub.TopicID))
	if sub.Secret != "" {
		form.Set("hub.secret", sub.Secret)
	}
	if sub.VerifyToken != "" {
		form.Set("hub.verify_token", sub.VerifyToken)
	}
	if sub.LeaseSeconds > 0 {
		form.Set("hub.lease_seconds", strconv.Itoa(sub.LeaseSeconds))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.HubURLs[0], strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create hub request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

// CallbackURL builds the public callback address for a topic.
func (s *Subscriber) CallbackURL(topicID string) string {
	return fmt.Sprintf("%s/api/websub/callback?topicId=%s", s.baseURL, topicID)
}

// HandleVerification processes a hub verification request and returns
// the HTTP status and plain-text body to respond with. On success the
// body is the literal challenge, which the hub requires echoed back.
func (s *Subscriber) HandleVerification(params url.Values) (int, string) {
	mode := params.Get("hub.mode")
	topic := params.Get("hub.topic")
	challenge := params.Get("hub.challenge")

	if mode == "" || topic == "" || challenge == "" {
		return http.StatusBadRequest, "Missing hub verification parameters"
	}

	sub, ok := s.registry.Get(topic)
	if !ok {
		return http.StatusNotFound, "Topic not found"
	}

	if token := params.Get("hub.verify_token"); token != "" && token != sub.VerifyToken {
		return http.StatusForbidden, "Invalid verification token"
	}

	switch mode {
	case "subscribe":
		leaseSeconds := 0
		if raw := params.Get("hub.lease_seconds"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil {
				leaseSeconds = parsed
			}
		}
		s.registry.Activate(sub.TopicID, leaseSeconds)
		slog.Info("WebSub subscription verified", "topic", topic, "lease_seconds", leaseSeconds)
	case "unsubscribe":
		s.registry.SetMode(sub.TopicID, ModeExpired)
	}

	return http.StatusOK, challenge
}

// HandleNotification ingests a hub content push. When the
// subscription carries a secret, the signature over the raw body must
// verify before anything is ingested. Hubs often send thin pings, so
// the topic is re-fetched instead of trusting the pushed body.
func (s *Subscriber) HandleNotification(ctx context.Context, topicURL string, body []byte, header http.Header) error {
	sub, ok := s.registry.Get(topicURL)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topicURL)
	}

	if sub.Secret != "" {
		if err := verifySignature(body, header, sub.Secret); err != nil {
			return err
		}
	}

	s.registry.MarkPushed(sub.TopicID)

	result, err := s.loader.Load(ctx, topicURL)
	if err != nil {
		slog.Warn("Failed to reload feed after push", "topic", topicURL, "error", err)
		return nil
	}

	if _, err := s.registry.Upsert(topicURL, sub.FeedURL, result.Metadata.HubURLs, UpsertParams{}); err != nil {
		return err
	}
	s.registry.SetMode(sub.TopicID, ModeActive)
	s.registry.StoreItems(sub.TopicID, result.Items)

	return nil
}

func verifySignature(body []byte, header http.Header, secret string) error {
	signature := cmp.Or(header.Get("X-Hub-Signature-256"), header.Get("X-Hub-Signature"))
	if signature == "" {
		return ErrMissingSignature
	}

	algorithm, digest, found := strings.Cut(signature, "=")
	if !found || algorithm == "" || digest == "" {
		return fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}

	var newHash func() hash.Hash
	switch strings.ToLower(algorithm) {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		newHash = sha1.New
	case "sha384":
		newHash = sha512.New384
	case "sha512":
		newHash = sha512.New
	default:
		return fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidSignature, algorithm)
	}

	provided, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: malformed hex digest", ErrInvalidSignature)
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

// RefreshFeeds ensures subscriptions for all requested feeds
// concurrently and returns the stored items for them, newest first.
// Per-feed failures become warning strings instead of aborting the
// refresh, and warnings keep the caller's feed order regardless of
// completion order.
func (s *Subscriber) RefreshFeeds(ctx context.Context, feedURLs []string) ([]feed.Item, []string) {
	unique := dedupeURLs(feedURLs)
	if len(unique) == 0 {
		return nil, nil
	}

	perFeed := make([]string, len(unique))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, feedURL := range unique {
		group.Go(func() error {
			sub, err := s.EnsureSubscription(groupCtx, feedURL)
			switch {
			case err != nil:
				perFeed[i] = fmt.Sprintf("%s: %s", feedURL, err.Error())
			case len(sub.HubURLs) == 0:
				perFeed[i] = fmt.Sprintf("%s does not advertise a WebSub hub. Falling back to periodic polling.", feedURL)
			case sub.Mode == ModeExpired:
				perFeed[i] = fmt.Sprintf("Subscription for %s is not active yet. Will retry automatically.", feedURL)
			}
			return nil
		})
	}
	group.Wait()

	var warnings []string
	for _, warning := range perFeed {
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	return s.registry.Aggregated(unique), warnings
}

// ResolveTopicFromHeaders extracts the topic from a Link header with
// rel="self", the discovery mechanism hubs use on notifications.
func ResolveTopicFromHeaders(header http.Header) string {
	link := header.Get("Link")
	if link == "" {
		return ""
	}

	matches := selfLinkPattern.FindStringSubmatch(link)
	if matches == nil {
		return ""
	}
	return matches[1]
}

// ResolveTopicFromID maps a callback identifier back to its topic URL.
func (s *Subscriber) ResolveTopicFromID(topicID string) string {
	if topicID == "" {
		return ""
	}
	sub, ok := s.registry.GetByID(topicID)
	if !ok {
		return ""
	}
	return sub.TopicURL
}

func (s *Subscriber) currentState(topicID string) Subscription {
	sub, _ := s.registry.GetByID(topicID)
	return sub
}

func dedupeURLs(feedURLs []string) []string {
	seen := make(map[string]bool, len(feedURLs))
	var unique []string
	for _, feedURL := range feedURLs {
		if feedURL == "" || seen[feedURL] {
			continue
		}
		seen[feedURL] = true
		unique = append(unique, feedURL)
	}
	return unique
}
