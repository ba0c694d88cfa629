package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/models"
)

// SQLite implements the Store interface for SQLite. The record body is kept
// as a JSON document column so the daily buckets stay schema-free, matching
// the key-value contract.
type SQLite struct {
	db     *sql.DB
	config *models.Config
}

// New creates a new SQLite store instance
func New(config *models.Config) (*SQLite, error) {
	return &SQLite{
		config: config,
	}, nil
}

// Connect establishes connection to SQLite
func (s *SQLite) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	// Expand the URI path (handle ~ and relative paths)
	dbPath := s.config.URI
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	} else if !filepath.IsAbs(dbPath) {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path: %w", err)
		}
		dbPath = absPath
	}

	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database at path '%s': %w", dbPath, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping SQLite database at path '%s': %w", dbPath, err)
	}

	s.db = conn

	if err := s.createTables(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Disconnect closes the SQLite connection
func (s *SQLite) Disconnect(ctx context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping checks the database connection
func (s *SQLite) Ping(ctx context.Context) error {
	if s.db == nil {
		return db.ErrNotConnected
	}
	return s.db.PingContext(ctx)
}

// conn returns a live handle, reopening transparently after an external
// close invalidated the cached one.
func (s *SQLite) conn(ctx context.Context) (*sql.DB, error) {
	if s.db == nil {
		if err := s.Connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", db.ErrNotConnected, err)
		}
	}
	return s.db, nil
}

// createTables creates necessary tables
func (s *SQLite) createTables(ctx context.Context) error {
	createStatsTable := `
	CREATE TABLE IF NOT EXISTS daily_stats (
		entity_id TEXT PRIMARY KEY,
		entity_name TEXT NOT NULL,
		daily_data TEXT NOT NULL, -- JSON map of date -> bucket
		schema_version INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL
	);`

	if _, err := s.db.ExecContext(ctx, createStatsTable); err != nil {
		return fmt.Errorf("failed to create daily_stats table: %w", err)
	}
	return nil
}

// Get retrieves usage stats for an entity by id
func (s *SQLite) Get(ctx context.Context, entityID string) (*models.EntityStats, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT entity_id, entity_name, daily_data, schema_version, updated_at FROM daily_stats WHERE entity_id = ?`

	var stats models.EntityStats
	var dailyData string
	err = conn.QueryRowContext(ctx, query, entityID).Scan(
		&stats.EntityID,
		&stats.EntityName,
		&dailyData,
		&stats.SchemaVersion,
		&stats.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity stats: %w", err)
	}

	if err := json.Unmarshal([]byte(dailyData), &stats.DailyData); err != nil {
		return nil, fmt.Errorf("failed to parse daily data for entity '%s': %w", entityID, err)
	}

	return stats.Migrate(), nil
}

// Put upserts the full record for an entity
func (s *SQLite) Put(ctx context.Context, stats *models.EntityStats) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}

	dailyData, err := json.Marshal(stats.DailyData)
	if err != nil {
		return fmt.Errorf("failed to marshal daily data: %w", err)
	}

	stats.UpdatedAt = time.Now()

	query := `
	INSERT INTO daily_stats (entity_id, entity_name, daily_data, schema_version, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(entity_id) DO UPDATE SET
		entity_name = excluded.entity_name,
		daily_data = excluded.daily_data,
		schema_version = excluded.schema_version,
		updated_at = excluded.updated_at`

	_, err = conn.ExecContext(ctx, query,
		stats.EntityID,
		stats.EntityName,
		string(dailyData),
		stats.SchemaVersion,
		stats.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entity stats: %w", err)
	}
	return nil
}

// GetAll returns every stored record
func (s *SQLite) GetAll(ctx context.Context) ([]*models.EntityStats, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT entity_id, entity_name, daily_data, schema_version, updated_at FROM daily_stats`

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity stats: %w", err)
	}
	defer rows.Close()

	var all []*models.EntityStats
	for rows.Next() {
		var stats models.EntityStats
		var dailyData string
		if err := rows.Scan(
			&stats.EntityID,
			&stats.EntityName,
			&dailyData,
			&stats.SchemaVersion,
			&stats.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entity stats: %w", err)
		}
		if err := json.Unmarshal([]byte(dailyData), &stats.DailyData); err != nil {
			return nil, fmt.Errorf("failed to parse daily data for entity '%s': %w", stats.EntityID, err)
		}
		all = append(all, stats.Migrate())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity stats: %w", err)
	}

	return all, nil
}

// GetDB exposes the underlying handle for migrations
func (s *SQLite) GetDB() *sql.DB {
	return s.db
}
