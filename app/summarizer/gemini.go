package summarizer

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client generates a text completion for a prompt. Satisfied by the
// Gemini client and by test fakes.
type Client interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

type GeminiClient struct {
	client *genai.Client
}

var _ Client = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	config := &genai.ClientConfig{
		APIKey: apiKey,
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client}, nil
}

func (c *GeminiClient) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text, err := result.Text()
	if err != nil {
		return "", fmt.Errorf("get text from result: %w", err)
	}

	return strings.TrimSpace(text), nil
}
