package tokenizer

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// DefaultCharsPerToken is the heuristic divisor used when no counting
// service is reachable.
const DefaultCharsPerToken = 3.5

// Counter counts tokens in a piece of text. Padding is added to the result,
// matching the padding the host applies when budgeting a prompt.
type Counter interface {
	Name() string
	Count(ctx context.Context, text string, padding int) (int, error)
}

// Registry manages available token counting providers
type Registry struct {
	mu       sync.RWMutex
	counters map[string]Counter
}

// NewRegistry creates a new counter registry
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]Counter),
	}
}

// Register adds a counter to the registry
func (r *Registry) Register(c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[c.Name()] = c
}

// Get returns the counter with the given name
func (r *Registry) Get(name string) (Counter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.counters[name]
	if !ok {
		return nil, fmt.Errorf("unknown tokenizer provider: %s", name)
	}
	return c, nil
}

// Estimate approximates a token count from text length. It never fails and
// is both a standalone provider and the fallback when a real counting
// service errors out.
type Estimate struct {
	CharsPerToken float64
}

// NewEstimate creates the heuristic counter
func NewEstimate(charsPerToken float64) *Estimate {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Estimate{CharsPerToken: charsPerToken}
}

// Name returns the provider name
func (e *Estimate) Name() string {
	return "estimate"
}

// Count estimates the token count of text
func (e *Estimate) Count(ctx context.Context, text string, padding int) (int, error) {
	return EstimateTokens(text, e.CharsPerToken) + padding, nil
}

// EstimateTokens returns the length-based token estimate for text.
func EstimateTokens(text string, charsPerToken float64) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return int(math.Round(float64(len([]rune(text))) / charsPerToken))
}
