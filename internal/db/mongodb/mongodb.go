package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AI2HU/chatstats/internal/db"
	"github.com/AI2HU/chatstats/internal/models"
)

// MongoDB implements the Store interface for MongoDB
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	config   *models.Config
}

const collStats = "daily_stats"

// New creates a new MongoDB store instance
func New(config *models.Config) (*MongoDB, error) {
	return &MongoDB{
		config: config,
	}, nil
}

// Connect establishes connection to MongoDB
func (m *MongoDB) Connect(ctx context.Context) error {
	if m.client != nil {
		return nil
	}

	clientOptions := options.Client().ApplyURI(m.config.URI)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.database = client.Database(m.config.Database)

	if err := m.createIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Disconnect closes the MongoDB connection
func (m *MongoDB) Disconnect(ctx context.Context) error {
	if m.client != nil {
		err := m.client.Disconnect(ctx)
		m.client = nil
		m.database = nil
		return err
	}
	return nil
}

// Ping checks the database connection
func (m *MongoDB) Ping(ctx context.Context) error {
	if m.client == nil {
		return db.ErrNotConnected
	}
	return m.client.Ping(ctx, nil)
}

// coll returns the stats collection, reconnecting if the cached client was
// invalidated.
func (m *MongoDB) coll(ctx context.Context) (*mongo.Collection, error) {
	if m.client == nil {
		if err := m.Connect(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", db.ErrNotConnected, err)
		}
	}
	return m.database.Collection(collStats), nil
}

// createIndexes creates necessary indexes
func (m *MongoDB) createIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "entity_name", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "updated_at", Value: -1},
			},
		},
	}

	_, err := m.database.Collection(collStats).Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create stats indexes: %w", err)
	}

	return nil
}

// Get retrieves usage stats for an entity by id
func (m *MongoDB) Get(ctx context.Context, entityID string) (*models.EntityStats, error) {
	coll, err := m.coll(ctx)
	if err != nil {
		return nil, err
	}

	var stats models.EntityStats
	err = coll.FindOne(ctx, bson.M{"_id": entityID}).Decode(&stats)
	if err == mongo.ErrNoDocuments {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity stats: %w", err)
	}

	return stats.Migrate(), nil
}

// Put upserts the full record for an entity
func (m *MongoDB) Put(ctx context.Context, stats *models.EntityStats) error {
	coll, err := m.coll(ctx)
	if err != nil {
		return err
	}

	stats.UpdatedAt = time.Now()

	filter := bson.M{"_id": stats.EntityID}
	opts := options.Replace().SetUpsert(true)

	if _, err := coll.ReplaceOne(ctx, filter, stats, opts); err != nil {
		return fmt.Errorf("failed to upsert entity stats: %w", err)
	}
	return nil
}

// GetAll returns every stored record
func (m *MongoDB) GetAll(ctx context.Context) ([]*models.EntityStats, error) {
	coll, err := m.coll(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list entity stats: %w", err)
	}
	defer cursor.Close(ctx)

	var all []*models.EntityStats
	for cursor.Next(ctx) {
		var stats models.EntityStats
		if err := cursor.Decode(&stats); err != nil {
			return nil, fmt.Errorf("failed to decode entity stats: %w", err)
		}
		all = append(all, stats.Migrate())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity stats: %w", err)
	}

	return all, nil
}
