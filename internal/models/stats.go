package models

import (
	"time"
)

// SchemaVersion is the current on-disk version of EntityStats records.
const SchemaVersion = 1

// DateFormat is the bucket key layout, always in UTC.
const DateFormat = "2006-01-02"

// DailyBucket holds the usage counters for one (entity, calendar day) pair.
// All counters only ever grow; a bucket is created lazily on the first event
// of the day with everything at zero.
type DailyBucket struct {
	UserMessages     int `json:"user_messages" bson:"user_messages"`
	AIMessages       int `json:"ai_messages" bson:"ai_messages"`
	UserTokens       int `json:"user_tokens" bson:"user_tokens"`
	AITokens         int `json:"ai_tokens" bson:"ai_tokens"`
	CumulativeTokens int `json:"cumulative_tokens" bson:"cumulative_tokens"`
}

// EntityStats is the full usage record for one tracked entity (a character or
// a group chat). EntityID is the primary key and never changes; EntityName is
// last-write-wins. DailyData maps YYYY-MM-DD (UTC) to that day's counters.
type EntityStats struct {
	EntityID      string                  `json:"entity_id" bson:"_id"`
	EntityName    string                  `json:"entity_name" bson:"entity_name"`
	DailyData     map[string]*DailyBucket `json:"daily_data" bson:"daily_data"`
	SchemaVersion int                     `json:"schema_version" bson:"schema_version"`
	UpdatedAt     time.Time               `json:"updated_at" bson:"updated_at"`
}

// NewEntityStats creates an empty record for an entity seen for the first
// time. The name falls back to the id when the event carried none.
func NewEntityStats(entityID, entityName string) *EntityStats {
	if entityName == "" {
		entityName = entityID
	}
	return &EntityStats{
		EntityID:      entityID,
		EntityName:    entityName,
		DailyData:     make(map[string]*DailyBucket),
		SchemaVersion: SchemaVersion,
	}
}

// Migrate normalizes a record read from storage so that older or partially
// written records never reach the reducer in a broken shape. Missing maps and
// buckets are materialized, and the schema version is stamped to current.
// Numeric fields absent from legacy JSON already decode to zero.
func (s *EntityStats) Migrate() *EntityStats {
	if s.DailyData == nil {
		s.DailyData = make(map[string]*DailyBucket)
	}
	for date, bucket := range s.DailyData {
		if bucket == nil {
			s.DailyData[date] = &DailyBucket{}
		}
	}
	if s.EntityName == "" {
		s.EntityName = s.EntityID
	}
	s.SchemaVersion = SchemaVersion
	return s
}

// Bucket returns the bucket for the given date, creating it if needed.
func (s *EntityStats) Bucket(date string) *DailyBucket {
	bucket, ok := s.DailyData[date]
	if !ok || bucket == nil {
		bucket = &DailyBucket{}
		s.DailyData[date] = bucket
	}
	return bucket
}

// UsageRow is one display row of the daily usage table.
type UsageRow struct {
	EntityID         string `json:"entity_id"`
	EntityName       string `json:"entity_name"`
	Date             string `json:"date"`
	UserMessages     int    `json:"user_messages"`
	UserTokens       int    `json:"user_tokens"`
	AIMessages       int    `json:"ai_messages"`
	AITokens         int    `json:"ai_tokens"`
	CumulativeTokens int    `json:"cumulative_tokens"`
}
