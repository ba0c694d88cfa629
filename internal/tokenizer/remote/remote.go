package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Counter implements the tokenizer Counter interface against a self-hosted
// tokenize endpoint, such as the one the chat application itself exposes.
type Counter struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a new remote counter
func New(baseURL string, ratePerSecond float64) *Counter {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}

	return &Counter{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

// Name returns the provider name
func (c *Counter) Name() string {
	return "remote"
}

// Count counts tokens in text via the remote tokenize endpoint
func (c *Counter) Count(ctx context.Context, text string, padding int) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	requestBody := map[string]interface{}{
		"text": text,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/tokenize", bytes.NewBuffer(jsonBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tokenize request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tokenize API error: %s", string(body))
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	return result.Count + padding, nil
}
