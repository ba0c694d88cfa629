package models

import (
	"strconv"
	"time"
)

// Envelope commands, mirrored by the ingestion API.
const (
	CommandProcessMessage     = "processMessage"
	CommandRecordPromptTokens = "recordPromptTokens"
)

// MessageEvent records one observed chat message for an entity.
// Timestamp is kept as the raw wire value; the aggregator derives the bucket
// date from it and substitutes the processing time when it cannot be parsed.
type MessageEvent struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	IsUser     bool   `json:"is_user"`
	TokenCount int    `json:"token_count"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// PromptEvent records the token size of one fully assembled generation
// prompt. It only ever touches the cumulative counter, never the message
// counters.
type PromptEvent struct {
	EntityID         string `json:"entity_id"`
	EntityName       string `json:"entity_name"`
	PromptTokenCount int    `json:"prompt_token_count"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// Envelope is the message passed from the event router to the background
// aggregator. Exactly one of Message or Prompt is set, matching Command.
type Envelope struct {
	ID      string        `json:"id"`
	Command string        `json:"command"`
	Message *MessageEvent `json:"message,omitempty"`
	Prompt  *PromptEvent  `json:"prompt,omitempty"`
}

// ParseEventTime interprets a wire timestamp. RFC 3339 and unix epoch values
// (seconds or milliseconds) are accepted; anything else falls back to now.
func ParseEventTime(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		// Millisecond epochs are thirteen digits for any modern date.
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	return now
}

// BucketDate normalizes a wire timestamp into a daily bucket key in UTC.
func BucketDate(raw string, now time.Time) string {
	return ParseEventTime(raw, now).UTC().Format(DateFormat)
}
