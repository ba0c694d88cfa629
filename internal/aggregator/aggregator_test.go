package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/models"
)

// memStore is an in-memory Store used to exercise the reduction logic.
// Records are deep-copied on both Get and Put so the aggregator cannot
// accidentally share state with the stored document, matching a real store.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.EntityStats
	failGet bool
	failPut bool
	puts    int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*models.EntityStats)}
}

func (m *memStore) Connect(ctx context.Context) error    { return nil }
func (m *memStore) Disconnect(ctx context.Context) error { return nil }
func (m *memStore) Ping(ctx context.Context) error       { return nil }

func (m *memStore) Get(ctx context.Context, entityID string) (*models.EntityStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, fmt.Errorf("simulated read failure")
	}
	stats, ok := m.records[entityID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyStats(stats), nil
}

func (m *memStore) Put(ctx context.Context, stats *models.EntityStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return fmt.Errorf("simulated write failure")
	}
	m.puts++
	m.records[stats.EntityID] = copyStats(stats)
	return nil
}

func (m *memStore) GetAll(ctx context.Context) ([]*models.EntityStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*models.EntityStats, 0, len(m.records))
	for _, stats := range m.records {
		all = append(all, copyStats(stats))
	}
	return all, nil
}

func copyStats(stats *models.EntityStats) *models.EntityStats {
	data, _ := json.Marshal(stats)
	var out models.EntityStats
	_ = json.Unmarshal(data, &out)
	return &out
}

func messageEnvelope(entityID, name string, isUser bool, tokens int, timestamp string) models.Envelope {
	return models.Envelope{
		ID:      "test",
		Command: models.CommandProcessMessage,
		Message: &models.MessageEvent{
			EntityID:   entityID,
			EntityName: name,
			IsUser:     isUser,
			TokenCount: tokens,
			Timestamp:  timestamp,
		},
	}
}

func promptEnvelope(entityID, name string, tokens int, timestamp string) models.Envelope {
	return models.Envelope{
		ID:      "test",
		Command: models.CommandRecordPromptTokens,
		Prompt: &models.PromptEvent{
			EntityID:         entityID,
			EntityName:       name,
			PromptTokenCount: tokens,
			Timestamp:        timestamp,
		},
	}
}

func TestUserMessageAccumulation(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	total := 0
	for i := 1; i <= 5; i++ {
		total += i * 10
		err := agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, i*10, "2025-03-01T10:00:00Z"))
		require.NoError(t, err)
	}

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)

	bucket := stats.DailyData["2025-03-01"]
	require.NotNil(t, bucket)
	assert.Equal(t, 5, bucket.UserMessages)
	assert.Equal(t, total, bucket.UserTokens)
	assert.Equal(t, 0, bucket.AIMessages)
	assert.Equal(t, 0, bucket.AITokens)
	assert.Equal(t, 0, bucket.CumulativeTokens)
}

func TestSeparateDailyBuckets(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T23:59:00Z")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 20, "2025-03-02T00:01:00Z")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	require.Len(t, stats.DailyData, 2)

	assert.Equal(t, 1, stats.DailyData["2025-03-01"].UserMessages)
	assert.Equal(t, 10, stats.DailyData["2025-03-01"].UserTokens)
	assert.Equal(t, 1, stats.DailyData["2025-03-02"].UserMessages)
	assert.Equal(t, 20, stats.DailyData["2025-03-02"].UserTokens)
}

func TestUTCDateBucketing(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	// 23:30 UTC-3 is already the next day in UTC.
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T23:30:00-03:00")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	require.Contains(t, stats.DailyData, "2025-03-02")
}

func TestNameLastWriteWins(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 1, "2025-03-01T10:00:00Z")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alicia", true, 1, "2025-03-01T11:00:00Z")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", stats.EntityName)

	// An empty name never clobbers the stored one.
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "", true, 1, "2025-03-01T12:00:00Z")))
	stats, err = store.Get(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, "Alicia", stats.EntityName)
}

func TestPromptEventOnlyTouchesCumulative(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T10:00:00Z")))
	require.NoError(t, agg.Apply(ctx, promptEnvelope("char-1", "Alice", 500, "2025-03-01T10:00:05Z")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)

	bucket := stats.DailyData["2025-03-01"]
	assert.Equal(t, 1, bucket.UserMessages)
	assert.Equal(t, 10, bucket.UserTokens)
	assert.Equal(t, 0, bucket.AIMessages)
	assert.Equal(t, 0, bucket.AITokens)
	assert.Equal(t, 500, bucket.CumulativeTokens)
}

func TestDayScenario(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	// One user message (10 tokens), one assistant message (15 tokens),
	// then a full prompt of 100 tokens, all on the same day.
	require.NoError(t, agg.Apply(ctx, messageEnvelope("x", "X", true, 10, "2025-03-01T09:00:00Z")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("x", "X", false, 15, "2025-03-01T09:01:00Z")))
	require.NoError(t, agg.Apply(ctx, promptEnvelope("x", "X", 100, "2025-03-01T09:01:05Z")))

	stats, err := store.Get(ctx, "x")
	require.NoError(t, err)

	bucket := stats.DailyData["2025-03-01"]
	require.NotNil(t, bucket)
	assert.Equal(t, 1, bucket.UserMessages)
	assert.Equal(t, 10, bucket.UserTokens)
	assert.Equal(t, 1, bucket.AIMessages)
	assert.Equal(t, 15, bucket.AITokens)
	assert.Equal(t, 100, bucket.CumulativeTokens)
}

func TestInterleavedEntitiesIndependent(t *testing.T) {
	ctx := context.Background()

	interleaved := newMemStore()
	agg := New(interleaved, 0)
	require.NoError(t, agg.Apply(ctx, messageEnvelope("a", "A", true, 1, "2025-03-01T10:00:00Z")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("b", "B", true, 2, "2025-03-01T10:01:00Z")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("a", "A", false, 3, "2025-03-01T10:02:00Z")))
	require.NoError(t, agg.Apply(ctx, promptEnvelope("b", "B", 4, "2025-03-01T10:03:00Z")))

	isolated := newMemStore()
	agg2 := New(isolated, 0)
	require.NoError(t, agg2.Apply(ctx, messageEnvelope("a", "A", true, 1, "2025-03-01T10:00:00Z")))
	require.NoError(t, agg2.Apply(ctx, messageEnvelope("a", "A", false, 3, "2025-03-01T10:02:00Z")))
	require.NoError(t, agg2.Apply(ctx, messageEnvelope("b", "B", true, 2, "2025-03-01T10:01:00Z")))
	require.NoError(t, agg2.Apply(ctx, promptEnvelope("b", "B", 4, "2025-03-01T10:03:00Z")))

	for _, id := range []string{"a", "b"} {
		got, err := interleaved.Get(ctx, id)
		require.NoError(t, err)
		want, err := isolated.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want.DailyData, got.DailyData, "entity %s", id)
	}
}

func TestUnparseableTimestampFallsBackToNow(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	agg.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "not-a-timestamp")))
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	require.Len(t, stats.DailyData, 1)
	assert.Equal(t, 2, stats.DailyData["2025-06-15"].UserMessages)
}

func TestLegacyRecordCoercion(t *testing.T) {
	store := newMemStore()
	// A record written before the token counters existed: no daily map at
	// all and a nil bucket.
	store.records["old"] = &models.EntityStats{
		EntityID: "old",
		DailyData: map[string]*models.DailyBucket{
			"2025-03-01": nil,
		},
	}

	agg := New(store, 0)
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("old", "Old", true, 7, "2025-03-01T10:00:00Z")))

	stats, err := store.Get(ctx, "old")
	require.NoError(t, err)

	bucket := stats.DailyData["2025-03-01"]
	require.NotNil(t, bucket)
	assert.Equal(t, 1, bucket.UserMessages)
	assert.Equal(t, 7, bucket.UserTokens)
	assert.Equal(t, models.SchemaVersion, stats.SchemaVersion)
}

func TestMissingEntityIDRejected(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	err := agg.Apply(ctx, messageEnvelope("", "Alice", true, 10, "2025-03-01T10:00:00Z"))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = agg.Apply(ctx, models.Envelope{Command: models.CommandProcessMessage})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = agg.Apply(ctx, models.Envelope{Command: "unknown"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	assert.Equal(t, 0, store.puts)
}

func TestNegativeTokenCountCoerced(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", false, -5, "2025-03-01T10:00:00Z")))
	require.NoError(t, agg.Apply(ctx, promptEnvelope("char-1", "Alice", -100, "2025-03-01T10:01:00Z")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)

	bucket := stats.DailyData["2025-03-01"]
	assert.Equal(t, 1, bucket.AIMessages)
	assert.Equal(t, 0, bucket.AITokens)
	assert.Equal(t, 0, bucket.CumulativeTokens)
}

func TestFailedWriteDropsEvent(t *testing.T) {
	store := newMemStore()
	agg := New(store, 0)
	ctx := context.Background()

	store.failPut = true
	err := agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T10:00:00Z"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidEvent))

	// The failed event is gone; the next one starts from a clean record.
	store.failPut = false
	require.NoError(t, agg.Apply(ctx, messageEnvelope("char-1", "Alice", true, 20, "2025-03-01T11:00:00Z")))

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DailyData["2025-03-01"].UserMessages)
	assert.Equal(t, 20, stats.DailyData["2025-03-01"].UserTokens)
}

func TestBackgroundLoopDrainsQueueOnStop(t *testing.T) {
	store := newMemStore()
	agg := New(store, 8)
	ctx := context.Background()

	require.NoError(t, agg.Start(ctx))

	for i := 0; i < 5; i++ {
		agg.Enqueue(messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T10:00:00Z"))
	}

	// Stop waits for the loop to drain everything already queued.
	agg.Stop()

	stats, err := store.Get(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.DailyData["2025-03-01"].UserMessages)
	assert.Equal(t, 50, stats.DailyData["2025-03-01"].UserTokens)

	// Events after Stop are dropped, not applied.
	agg.Enqueue(messageEnvelope("char-1", "Alice", true, 10, "2025-03-01T10:00:00Z"))
	stats, err = store.Get(ctx, "char-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.DailyData["2025-03-01"].UserMessages)
}
