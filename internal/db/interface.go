package db

import (
	"context"
	"errors"

	"github.com/AI2HU/chatstats/internal/models"
)

// Storage errors shared by all providers.
var (
	// ErrNotFound is returned by Get when no record exists for the entity.
	ErrNotFound = errors.New("entity stats not found")
	// ErrNotConnected is returned when the store handle is unavailable and
	// could not be re-established.
	ErrNotConnected = errors.New("not connected to storage")
)

// Store defines the interface for the daily usage key-value store. Records
// are keyed by entity id with full-document upsert semantics; the background
// aggregator is the only writer.
type Store interface {
	// Connection management. Connect is idempotent and creates the
	// underlying schema on first use.
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error

	// Get returns the stored record for the entity or ErrNotFound.
	Get(ctx context.Context, entityID string) (*models.EntityStats, error)
	// Put atomically replaces the full record with the same key.
	Put(ctx context.Context, stats *models.EntityStats) error
	// GetAll returns every stored record, used only for display.
	GetAll(ctx context.Context) ([]*models.EntityStats, error)
}
