package feed

import (
	"cmp"
	"context"
)

// Loader combines fetching and parsing and merges hub metadata from
// the feed body with metadata from the HTTP Link header.
type Loader struct {
	fetcher *Fetcher
	parser  *Parser
}

func NewLoader(fetcher *Fetcher, parser *Parser) *Loader {
	return &Loader{fetcher: fetcher, parser: parser}
}

func (l *Loader) Load(ctx context.Context, feedURL string) (*Result, error) {
	raw, err := l.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	result, err := l.parser.Run(raw.Body, feedURL)
	if err != nil {
		return nil, err
	}

	headerMetadata := ParseLinkHeader(raw.Header.Get("Link"))
	result.Metadata = mergeMetadata(result.Metadata, headerMetadata, feedURL)

	return result, nil
}

// LoadItems fetches and parses one feed and returns its items only.
func (l *Loader) LoadItems(ctx context.Context, feedURL string) ([]Item, error) {
	result, err := l.Load(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func mergeMetadata(fromXML, fromHeader Metadata, feedURL string) Metadata {
	merged := Metadata{HubURLs: fromXML.HubURLs}

	seen := make(map[string]struct{}, len(merged.HubURLs))
	for _, hub := range merged.HubURLs {
		seen[hub] = struct{}{}
	}
	for _, hub := range fromHeader.HubURLs {
		if _, ok := seen[hub]; !ok {
			seen[hub] = struct{}{}
			merged.HubURLs = append(merged.HubURLs, hub)
		}
	}

	merged.SelfURL = cmp.Or(fromXML.SelfURL, fromHeader.SelfURL, feedURL)
	merged.TopicURL = cmp.Or(fromXML.TopicURL, fromHeader.TopicURL, merged.SelfURL)

	return merged
}
