package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"langpacks/config"
)

// MongoDB is a connected MongoDB database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB connects to cfg.URL and verifies the connection.
func NewMongoDB(ctx context.Context, cfg config.MongoDBConfig) (*MongoDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("MongoDB URL is required")
	}
	name := cfg.Database
	if name == "" {
		name = DefaultMongoDatabase
	}

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &MongoDB{client: client, database: client.Database(name)}, nil
}

// Type returns "mongodb".
func (s *MongoDB) Type() string { return TypeMongoDB }

// Database returns the configured database.
func (s *MongoDB) Database() *mongo.Database { return s.database }

// Transients returns the transients collection.
func (s *MongoDB) Transients() *mongo.Collection {
	return s.database.Collection(TransientsTable)
}

// EnsureTransients creates the TTL index that lets the server sweep expired
// transients.
func (s *MongoDB) EnsureTransients(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	if _, err := s.Transients().Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("create transients ttl index: %w", err)
	}
	return nil
}

// PruneTransients deletes documents past their deadline without waiting for
// the TTL monitor.
func (s *MongoDB) PruneTransients(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Transients().DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("prune transients: %w", err)
	}
	return res.DeletedCount, nil
}

// Close disconnects the client.
func (s *MongoDB) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
