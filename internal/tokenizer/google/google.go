package google

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const defaultModel = "gemini-1.5-flash"

// Counter implements the tokenizer Counter interface on top of the Gemini
// CountTokens endpoint.
type Counter struct {
	apiKey  string
	model   string
	client  *genai.Client
	limiter *rate.Limiter
}

// New creates a new Google counter. ratePerSecond caps outbound calls so a
// chatty host cannot exhaust the API quota.
func New(apiKey, model string, ratePerSecond float64) *Counter {
	if model == "" {
		model = defaultModel
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		client = nil
	}

	return &Counter{
		apiKey:  apiKey,
		model:   model,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

// Name returns the provider name
func (c *Counter) Name() string {
	return "google"
}

// Count counts tokens in text via the Gemini API
func (c *Counter) Count(ctx context.Context, text string, padding int) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	client := c.client
	if client == nil {
		var err error
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to create Google client: %w", err)
		}
		c.client = client
	}

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: text},
			},
		},
	}

	resp, err := client.Models.CountTokens(ctx, c.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}

	return int(resp.TotalTokens) + padding, nil
}
