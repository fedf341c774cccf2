package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"langpacks/internal/storage"
)

type mongoTransientDocument struct {
	ID        string     `bson:"_id"`
	Value     []byte     `bson:"value"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
}

// MongoDBStore stores transients in a MongoDB collection.
// The server's TTL monitor sweeps expired documents; Get also checks the deadline
// because the monitor only runs periodically.
type MongoDBStore struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoDBStore stores transients in db, creating the TTL index if needed.
func NewMongoDBStore(ctx context.Context, db *storage.MongoDB) (*MongoDBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if err := db.EnsureTransients(ctx); err != nil {
		return nil, err
	}
	return &MongoDBStore{collection: db.Transients(), now: time.Now}, nil
}

func (s *MongoDBStore) live(doc *mongoTransientDocument) bool {
	return doc.ExpiresAt == nil || s.now().Before(*doc.ExpiresAt)
}

// Get returns a transient by name.
func (s *MongoDBStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc mongoTransientDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query transient: %w", err)
	}
	if !s.live(&doc) {
		return nil, false, nil
	}
	return doc.Value, true, nil
}

// Set replaces or inserts a transient.
func (s *MongoDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	doc := mongoTransientDocument{ID: key, Value: value}
	if ttl > 0 {
		deadline := s.now().Add(ttl).UTC()
		doc.ExpiresAt = &deadline
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return fmt.Errorf("upsert transient: %w", err)
	}
	return nil
}

// Delete removes a transient and reports whether a live document existed.
func (s *MongoDBStore) Delete(ctx context.Context, key string) (bool, error) {
	var doc mongoTransientDocument
	err := s.collection.FindOneAndDelete(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("delete transient: %w", err)
	}
	return s.live(&doc), nil
}

// Close is a no-op; client lifecycle is managed by storage layer.
func (s *MongoDBStore) Close() error {
	return nil
}
