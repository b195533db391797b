package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/mlitvin/newssift/app/feed"
)

type fakeClient struct {
	response string
	err      error
	calls    atomic.Int64
}

func (c *fakeClient) GenerateText(ctx context.Context, model, prompt string) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func TestService_Summarize_UsesClient(t *testing.T) {
	client := &fakeClient{response: "A concise model summary."}
	service := NewService(client, "test-model")

	article := feed.Article{ID: "a1", Title: "Story", Content: "Long article body."}

	summary := service.Summarize(context.Background(), article)
	if summary != "A concise model summary." {
		t.Errorf("Unexpected summary: %q", summary)
	}
}

func TestService_Summarize_CachesByArticleID(t *testing.T) {
	client := &fakeClient{response: "Cached summary."}
	service := NewService(client, "test-model")

	article := feed.Article{ID: "a1", Title: "Story", Content: "Body."}

	service.Summarize(context.Background(), article)
	service.Summarize(context.Background(), article)

	if calls := client.calls.Load(); calls != 1 {
		t.Errorf("Expected one model call for repeated article, got %d", calls)
	}
}

func TestService_Summarize_ClientErrorFallsBack(t *testing.T) {
	client := &fakeClient{err: errors.New("quota exceeded")}
	service := NewService(client, "test-model")

	article := feed.Article{
		ID:             "a1",
		Title:          "Story",
		ContentSnippet: "First sentence. Second sentence. Third sentence. Fourth sentence.",
	}

	summary := service.Summarize(context.Background(), article)
	if summary == "" {
		t.Fatal("Fallback should produce a summary")
	}
	if strings.Contains(summary, "Fourth sentence") {
		t.Errorf("Fallback should keep only the first three sentences, got %q", summary)
	}
	if !strings.Contains(summary, "Third sentence") {
		t.Errorf("Fallback should keep three sentences, got %q", summary)
	}
}

func TestService_Summarize_NilClientUsesFallback(t *testing.T) {
	service := NewService(nil, "test-model")

	article := feed.Article{ID: "a1", Title: "Story", ContentSnippet: "Only sentence."}

	if summary := service.Summarize(context.Background(), article); summary != "Only sentence." {
		t.Errorf("Unexpected fallback summary: %q", summary)
	}
}

func TestFallback_ThreeSentences(t *testing.T) {
	article := feed.Article{
		Title:          "Story",
		ContentSnippet: "One. Two! Three? Four.",
	}

	summary := Fallback(article)
	if summary != "One. Two! Three?" {
		t.Errorf("Unexpected extractive summary: %q", summary)
	}
}

func TestFallback_AbbreviationsStayIntact(t *testing.T) {
	article := feed.Article{
		Title:          "Story",
		ContentSnippet: "The U.S. economy grew. Analysts cheered. Markets rose. Bonds fell.",
	}

	summary := Fallback(article)
	if !strings.Contains(summary, "U.S. economy") {
		t.Errorf("Abbreviation split the sentence: %q", summary)
	}
	if strings.Contains(summary, "Bonds fell") {
		t.Errorf("Expected only three sentences, got %q", summary)
	}
}

func TestFallback_ClampsLongText(t *testing.T) {
	article := feed.Article{
		Title:          "Story",
		ContentSnippet: strings.Repeat("Lengthy sentence without a terminator ", 30),
	}

	summary := Fallback(article)
	if utf8.RuneCountInString(summary) > 420 {
		t.Errorf("Summary exceeds clamp: %d runes", utf8.RuneCountInString(summary))
	}
	if !strings.HasSuffix(summary, "…") {
		t.Errorf("Clamped summary should end with an ellipsis: %q", summary)
	}
}

func TestFallback_EmptyTextUsesTitle(t *testing.T) {
	article := feed.Article{Title: "Just a headline"}

	if summary := Fallback(article); summary != "Just a headline" {
		t.Errorf("Unexpected summary: %q", summary)
	}
}

func TestFallback_PrefersSnippetOverContent(t *testing.T) {
	article := feed.Article{
		Title:          "Story",
		ContentSnippet: "Snippet text.",
		Content:        "Full content text.",
	}

	if summary := Fallback(article); summary != "Snippet text." {
		t.Errorf("Snippet should be preferred, got %q", summary)
	}
}
