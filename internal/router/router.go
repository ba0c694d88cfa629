package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/logger"
	"github.com/AI2HU/chatstats/internal/models"
	"github.com/AI2HU/chatstats/internal/tokenizer"
)

// Sink receives envelopes for background processing. Delivery is
// fire-and-forget; the router never learns whether an event was applied.
type Sink interface {
	Enqueue(env models.Envelope)
}

// ChatContext carries the host application's active chat identity. A group
// chat takes precedence over a single character; a character is identified
// by its avatar key, which stays stable across renames.
type ChatContext struct {
	ChatID        string `json:"chat_id,omitempty"`
	GroupID       string `json:"group_id,omitempty"`
	GroupName     string `json:"group_name,omitempty"`
	CharacterID   string `json:"character_id,omitempty"`
	CharacterName string `json:"character_name,omitempty"`
}

// Message is one observed chat message.
type Message struct {
	Text       string `json:"text"`
	TokenCount int    `json:"token_count,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	IsSystem   bool   `json:"is_system,omitempty"`
}

// Router bridges the host's event stream and the aggregator. It resolves
// the current entity, derives token counts, and owns the read-side snapshot
// used for display.
type Router struct {
	sink    Sink
	store   db.Store
	counter tokenizer.Counter

	tokenPadding  int
	charsPerToken float64

	mu         sync.RWMutex
	entityID   string
	entityName string

	now func() time.Time
}

// New creates a router. counter may be nil, in which case every count falls
// back to the length heuristic.
func New(sink Sink, store db.Store, counter tokenizer.Counter, tokenPadding int, charsPerToken float64) *Router {
	if charsPerToken <= 0 {
		charsPerToken = tokenizer.DefaultCharsPerToken
	}
	return &Router{
		sink:          sink,
		store:         store,
		counter:       counter,
		tokenPadding:  tokenPadding,
		charsPerToken: charsPerToken,
		now:           time.Now,
	}
}

// OnChatChanged recomputes the active entity from the host's chat context.
// An unresolvable context clears the active entity and later message events
// are silently dropped until one resolves again.
func (r *Router) OnChatChanged(chat ChatContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case chat.GroupID != "":
		r.entityID = chat.GroupID
		r.entityName = chat.GroupName
		if r.entityName == "" {
			r.entityName = chat.GroupID
		}
	case chat.CharacterID != "":
		r.entityID = chat.CharacterID
		r.entityName = chat.CharacterName
		if r.entityName == "" {
			r.entityName = chat.CharacterID
		}
	default:
		r.entityID = ""
		r.entityName = ""
	}

	if r.entityID == "" {
		logger.Debug("Chat context changed: no active entity")
	} else {
		logger.Debug("Chat context changed: entity %s (%s)", r.entityName, r.entityID)
	}
}

// ActiveEntity returns the currently resolved entity id and name.
func (r *Router) ActiveEntity() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entityID, r.entityName
}

// OnMessage records one observed message for the active entity. Empty
// messages, system messages and messages with no active entity are ignored.
func (r *Router) OnMessage(ctx context.Context, msg Message, isUser bool) {
	entityID, entityName := r.ActiveEntity()
	if entityID == "" || msg.Text == "" {
		return
	}
	if msg.IsSystem && !isUser {
		return
	}

	tokenCount := r.resolveTokenCount(ctx, msg)

	r.sink.Enqueue(models.Envelope{
		ID:      uuid.New().String(),
		Command: models.CommandProcessMessage,
		Message: &models.MessageEvent{
			EntityID:   entityID,
			EntityName: entityName,
			IsUser:     isUser,
			TokenCount: tokenCount,
			Timestamp:  msg.Timestamp,
		},
	})
}

// OnPromptAssembled records the token size of a fully combined generation
// prompt. Dry runs and empty prompts are ignored.
func (r *Router) OnPromptAssembled(ctx context.Context, prompt string, dryRun bool) {
	entityID, entityName := r.ActiveEntity()
	if dryRun || entityID == "" || prompt == "" {
		return
	}

	tokenCount := r.countOrEstimate(ctx, prompt, r.tokenPadding)

	r.sink.Enqueue(models.Envelope{
		ID:      uuid.New().String(),
		Command: models.CommandRecordPromptTokens,
		Prompt: &models.PromptEvent{
			EntityID:         entityID,
			EntityName:       entityName,
			PromptTokenCount: tokenCount,
			Timestamp:        r.now().UTC().Format(time.RFC3339),
		},
	})
}

// resolveTokenCount picks the message token count: a positive precomputed
// count wins, then the counting service, then the length heuristic.
func (r *Router) resolveTokenCount(ctx context.Context, msg Message) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}
	return r.countOrEstimate(ctx, msg.Text, 0)
}

func (r *Router) countOrEstimate(ctx context.Context, text string, padding int) int {
	if r.counter != nil {
		count, err := r.counter.Count(ctx, text, padding)
		if err == nil {
			return count
		}
		logger.Warning("Token count failed, falling back to estimate: %v", err)
	}
	return tokenizer.EstimateTokens(text, r.charsPerToken) + padding
}

// TodaySnapshot returns one row per entity with activity today (UTC),
// ordered case-insensitively by display name. Entities with no bucket for
// today are omitted; an empty store yields an empty slice.
func (r *Router) TodaySnapshot(ctx context.Context) ([]models.UsageRow, error) {
	all, err := r.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage store: %w", err)
	}

	today := r.now().UTC().Format(models.DateFormat)

	rows := make([]models.UsageRow, 0, len(all))
	for _, stats := range all {
		bucket, ok := stats.DailyData[today]
		if !ok || bucket == nil {
			continue
		}
		rows = append(rows, models.UsageRow{
			EntityID:         stats.EntityID,
			EntityName:       stats.EntityName,
			Date:             today,
			UserMessages:     bucket.UserMessages,
			UserTokens:       bucket.UserTokens,
			AIMessages:       bucket.AIMessages,
			AITokens:         bucket.AITokens,
			CumulativeTokens: bucket.CumulativeTokens,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a := strings.ToLower(rows[i].EntityName)
		b := strings.ToLower(rows[j].EntityName)
		if a == b {
			return rows[i].EntityID < rows[j].EntityID
		}
		return a < b
	})

	return rows, nil
}
