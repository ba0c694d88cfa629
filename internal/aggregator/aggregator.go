package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/logger"
	"github.com/AI2HU/chatstats/internal/models"
)

// ErrInvalidEvent marks a malformed payload rejected before reduction.
var ErrInvalidEvent = errors.New("invalid usage event")

// Aggregator is the single writer of the usage store. It consumes envelopes
// from a buffered channel one at a time, so every read-modify-write cycle
// completes before the next event starts; that serialization is the only
// concurrency control the store needs as long as one instance is live.
//
// Failures are terminal for the affected event only: the event is logged and
// dropped, never retried, and the loop keeps running.
type Aggregator struct {
	store db.Store
	queue chan models.Envelope
	done  chan struct{}

	mu      sync.Mutex
	running bool

	now func() time.Time
}

// New creates an aggregator over the given store. queueSize bounds the
// channel between the router and the background loop.
func New(store db.Store, queueSize int) *Aggregator {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Aggregator{
		store: store,
		queue: make(chan models.Envelope, queueSize),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// Start connects the store and launches the background loop.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("aggregator already running")
	}

	if err := a.store.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect usage store: %w", err)
	}

	a.running = true
	go a.loop(ctx)

	logger.Info("Usage aggregator started")
	return nil
}

// Stop drains the queue and waits for the loop to finish.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	logger.Info("Usage aggregator stopped")
}

// Enqueue hands an envelope to the background loop. It never blocks and
// never returns an error: when the queue is full or the aggregator is not
// running the event is dropped, which matches the no-retry policy.
func (a *Aggregator) Enqueue(env models.Envelope) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		logger.Warning("Dropping usage event %s: aggregator not running", env.ID)
		return
	}

	select {
	case a.queue <- env:
	default:
		logger.Warning("Dropping usage event %s: queue full", env.ID)
	}
}

func (a *Aggregator) loop(ctx context.Context) {
	defer close(a.done)
	for env := range a.queue {
		if err := a.Apply(ctx, env); err != nil {
			logger.Error("Failed to apply usage event %s (%s): %v", env.ID, env.Command, err)
		}
	}
}

// Apply reduces one envelope into the store. Exposed for the loop and for
// synchronous use in tests; production callers go through Enqueue.
func (a *Aggregator) Apply(ctx context.Context, env models.Envelope) error {
	switch env.Command {
	case models.CommandProcessMessage:
		if env.Message == nil {
			return fmt.Errorf("%w: missing message payload", ErrInvalidEvent)
		}
		return a.applyMessage(ctx, env.Message)
	case models.CommandRecordPromptTokens:
		if env.Prompt == nil {
			return fmt.Errorf("%w: missing prompt payload", ErrInvalidEvent)
		}
		return a.applyPrompt(ctx, env.Prompt)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidEvent, env.Command)
	}
}

func (a *Aggregator) applyMessage(ctx context.Context, ev *models.MessageEvent) error {
	stats, date, err := a.load(ctx, ev.EntityID, ev.EntityName, ev.Timestamp)
	if err != nil {
		return err
	}

	bucket := stats.Bucket(date)
	if ev.IsUser {
		bucket.UserMessages++
		bucket.UserTokens += clampTokens(ev.TokenCount)
	} else {
		bucket.AIMessages++
		bucket.AITokens += clampTokens(ev.TokenCount)
	}

	if err := a.store.Put(ctx, stats); err != nil {
		return fmt.Errorf("failed to write stats for entity '%s': %w", ev.EntityID, err)
	}
	return nil
}

func (a *Aggregator) applyPrompt(ctx context.Context, ev *models.PromptEvent) error {
	stats, date, err := a.load(ctx, ev.EntityID, ev.EntityName, ev.Timestamp)
	if err != nil {
		return err
	}

	bucket := stats.Bucket(date)
	bucket.CumulativeTokens += clampTokens(ev.PromptTokenCount)

	if err := a.store.Put(ctx, stats); err != nil {
		return fmt.Errorf("failed to write stats for entity '%s': %w", ev.EntityID, err)
	}
	return nil
}

// load fetches or synthesizes the record for an entity and derives the
// bucket date from the event timestamp, falling back to the processing time
// when the timestamp is missing or unparseable.
func (a *Aggregator) load(ctx context.Context, entityID, entityName, timestamp string) (*models.EntityStats, string, error) {
	if entityID == "" {
		return nil, "", fmt.Errorf("%w: missing entity id", ErrInvalidEvent)
	}

	date := models.BucketDate(timestamp, a.now())

	stats, err := a.store.Get(ctx, entityID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		stats = models.NewEntityStats(entityID, entityName)
	case err != nil:
		return nil, "", fmt.Errorf("failed to read stats for entity '%s': %w", entityID, err)
	default:
		stats.Migrate()
	}

	// Display name is last-write-wins.
	if entityName != "" && stats.EntityName != entityName {
		stats.EntityName = entityName
	}

	return stats, date, nil
}

// clampTokens coerces invalid token counts to zero.
func clampTokens(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
