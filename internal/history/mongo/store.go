// Package mongo stores run history in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sheetsync/sheetsync/internal/history"
)

// DefaultCollection holds one document per run.
const DefaultCollection = "sync_runs"

// Store is a history.Store backed by MongoDB.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Connect dials uri, verifies the connection and prepares the collection.
func Connect(ctx context.Context, uri, dbName, collectionName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := NewStore(client.Database(dbName), collectionName)
	s.client = client
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// NewStore uses an existing database handle. Close does not disconnect it.
func NewStore(db *mongo.Database, collectionName string) *Store {
	if collectionName == "" {
		collectionName = DefaultCollection
	}
	return &Store{coll: db.Collection(collectionName)}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "started_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create history index: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec history.RunRecord) error {
	_, err := s.coll.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (s *Store) List(ctx context.Context, unitID string, limit int) ([]history.RunRecord, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.M{"unit_id": unitID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	runs := []history.RunRecord{}
	if err := cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

var _ history.Store = (*Store)(nil)
