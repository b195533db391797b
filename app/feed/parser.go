package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// At most this many items are taken per fetch, in document order.
const maxItemsPerFeed = 20

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses RSS/Atom data into normalized items plus WebSub metadata.
// Items missing a title or link are skipped without failing the feed.
func (p *Parser) Run(data []byte, feedURL string) (*Result, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	feedHost := ExtractHostname(parsed.Link)
	if feedHost == "" {
		feedHost = ExtractHostname(feedURL)
	}

	fetchedAt := time.Now().UTC()

	raw := parsed.Items
	if len(raw) > maxItemsPerFeed {
		raw = raw[:maxItemsPerFeed]
	}

	items := make([]Item, 0, len(raw))
	for _, entry := range raw {
		title := strings.TrimSpace(entry.Title)
		if title == "" || entry.Link == "" {
			continue
		}

		source := ExtractHostname(entry.Link)
		if source == "" {
			source = feedHost
		}
		if source == "" {
			source = "unknown"
		}

		item := Item{
			Title:          title,
			Link:           entry.Link,
			Source:         source,
			PublishedAt:    resolvePublishedAt(entry, fetchedAt),
			ContentSnippet: collapseWhitespace(cmp.Or(entry.Description, entry.Content)),
			Content:        strings.TrimSpace(entry.Content),
			FeedURL:        feedURL,
		}

		items = append(items, item)
	}

	metadata := DiscoverLinks(data)
	metadata.SelfURL = cmp.Or(metadata.SelfURL, parsed.Link)
	metadata.TopicURL = cmp.Or(metadata.TopicURL, metadata.SelfURL, feedURL)

	return &Result{Items: items, Metadata: metadata}, nil
}

// resolvePublishedAt resolves the publish date: structured date first,
// then the raw date string through a lenient parser, then the update
// date, and as a last resort the fetch time. Never zero.
func resolvePublishedAt(entry *gofeed.Item, fetchedAt time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}

	if entry.Published != "" {
		if parsed, err := dateparse.ParseAny(entry.Published); err == nil {
			return parsed
		}
	}

	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}

	return fetchedAt
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// WebSub discovery scans the raw XML itself because generic feed
// parsers drop unrecognized link relations.
var (
	linkTagPattern  = regexp.MustCompile(`(?i)<(?:[a-z0-9]+:)?link\b([^>]*?)/?>`)
	relAttrPattern  = regexp.MustCompile(`(?i)\brel=["']([^"']+)["']`)
	hrefAttrPattern = regexp.MustCompile(`(?i)\bhref=["']([^"']+)["']`)
)

// DiscoverLinks extracts rel="hub" and rel="self" link tags from raw
// feed XML, independent of what the feed parser understood.
func DiscoverLinks(data []byte) Metadata {
	var metadata Metadata
	seenHubs := make(map[string]struct{})

	for _, match := range linkTagPattern.FindAllSubmatch(data, -1) {
		attrs := match[1]

		hrefMatch := hrefAttrPattern.FindSubmatch(attrs)
		if hrefMatch == nil {
			continue
		}
		href := strings.TrimSpace(string(hrefMatch[1]))

		var rels []string
		if relMatch := relAttrPattern.FindSubmatch(attrs); relMatch != nil {
			rels = strings.Fields(strings.ToLower(string(relMatch[1])))
		}

		for _, rel := range rels {
			switch rel {
			case "hub":
				if _, ok := seenHubs[href]; !ok {
					seenHubs[href] = struct{}{}
					metadata.HubURLs = append(metadata.HubURLs, href)
				}
			case "self":
				if metadata.SelfURL == "" {
					metadata.SelfURL = href
				}
			}
		}
	}

	metadata.TopicURL = metadata.SelfURL
	return metadata
}

var (
	headerHrefPattern = regexp.MustCompile(`<([^>]+)>`)
	headerRelPattern  = regexp.MustCompile(`(?i)rel="?([^";]+)"?`)
)

// ParseLinkHeader extracts hub and self relations from an HTTP Link
// header value.
func ParseLinkHeader(value string) Metadata {
	var metadata Metadata
	if value == "" {
		return metadata
	}

	seenHubs := make(map[string]struct{})
	for _, part := range strings.Split(value, ",") {
		hrefMatch := headerHrefPattern.FindStringSubmatch(part)
		relMatch := headerRelPattern.FindStringSubmatch(part)
		if hrefMatch == nil || relMatch == nil {
			continue
		}

		href := strings.TrimSpace(hrefMatch[1])
		rel := strings.ToLower(strings.TrimSpace(relMatch[1]))

		if strings.Contains(rel, "hub") {
			if _, ok := seenHubs[href]; !ok {
				seenHubs[href] = struct{}{}
				metadata.HubURLs = append(metadata.HubURLs, href)
			}
		}
		if strings.Contains(rel, "self") {
			metadata.SelfURL = href
		}
	}

	metadata.TopicURL = metadata.SelfURL
	return metadata
}
