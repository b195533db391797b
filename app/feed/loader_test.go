package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoader_Load_MergesHeaderMetadata(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">
  <channel>
    <title>Example</title>
    <link>https://example.com</link>
    <atom:link rel="hub" href="https://xml-hub.example.com/" />
    <item><title>Story</title><link>https://example.com/1</link></item>
  </channel>
</rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Link", `<https://header-hub.example.com/>; rel="hub", <https://example.com/feed>; rel="self"`)
		w.Write([]byte(rss))
	}))
	defer server.Close()

	loader := NewLoader(NewFetcher(server.Client(), nil, "TestAgent/1.0"), NewParser())

	result, err := loader.Load(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Metadata.HubURLs) != 2 {
		t.Fatalf("Expected hubs from XML and header merged, got %v", result.Metadata.HubURLs)
	}
	if result.Metadata.HubURLs[0] != "https://xml-hub.example.com/" {
		t.Errorf("XML hubs should come first, got %v", result.Metadata.HubURLs)
	}
	if len(result.Items) != 1 {
		t.Errorf("Expected 1 item, got %d", len(result.Items))
	}
}

func TestLoader_Load_SelfFallsBackToFeedURL(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example</title>
    <item><title>Story</title><link>https://example.com/1</link></item>
  </channel>
</rss>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rss))
	}))
	defer server.Close()

	loader := NewLoader(NewFetcher(server.Client(), nil, "TestAgent/1.0"), NewParser())

	result, err := loader.Load(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Metadata.SelfURL != server.URL {
		t.Errorf("Self should fall back to the request URL, got %s", result.Metadata.SelfURL)
	}
	if result.Metadata.TopicURL != server.URL {
		t.Errorf("Topic should fall back to the request URL, got %s", result.Metadata.TopicURL)
	}
}

func TestLoader_LoadItems_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	loader := NewLoader(NewFetcher(server.Client(), nil, "TestAgent/1.0"), NewParser())

	if _, err := loader.LoadItems(context.Background(), server.URL); err == nil {
		t.Error("Expected error for 404 response")
	}
}
