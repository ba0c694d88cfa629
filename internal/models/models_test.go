package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventTime(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", "2025-03-01T10:30:00Z", time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"unix seconds", "1740825000", time.Unix(1740825000, 0)},
		{"unix millis", "1740825000000", time.UnixMilli(1740825000000)},
		{"empty falls back", "", now},
		{"garbage falls back", "yesterday-ish", now},
		{"negative falls back", "-42", now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEventTime(tt.raw, now)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestBucketDateIsUTC(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Late evening in a western timezone is already the next UTC day.
	assert.Equal(t, "2025-03-02", BucketDate("2025-03-01T23:30:00-03:00", now))
	assert.Equal(t, "2025-06-15", BucketDate("", now))
}

func TestMigrateBackfillsLegacyRecord(t *testing.T) {
	// A record serialized before the token counters existed.
	legacy := []byte(`{
		"entity_id": "old.png",
		"daily_data": {
			"2024-11-02": {"user_messages": 3, "ai_messages": 2},
			"2024-11-03": null
		}
	}`)

	var stats EntityStats
	require.NoError(t, json.Unmarshal(legacy, &stats))
	stats.Migrate()

	assert.Equal(t, SchemaVersion, stats.SchemaVersion)
	assert.Equal(t, "old.png", stats.EntityName, "name falls back to id")

	bucket := stats.DailyData["2024-11-02"]
	require.NotNil(t, bucket)
	assert.Equal(t, 3, bucket.UserMessages)
	assert.Equal(t, 0, bucket.UserTokens)
	assert.Equal(t, 0, bucket.AITokens)
	assert.Equal(t, 0, bucket.CumulativeTokens)

	require.NotNil(t, stats.DailyData["2024-11-03"])
}

func TestMigrateNilDailyData(t *testing.T) {
	stats := &EntityStats{EntityID: "x"}
	stats.Migrate()
	require.NotNil(t, stats.DailyData)

	bucket := stats.Bucket("2025-03-01")
	require.NotNil(t, bucket)
	assert.Same(t, bucket, stats.Bucket("2025-03-01"))
}
