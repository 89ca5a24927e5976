package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jarvas-assistant/jarvas/memory"
)

// MongoStore implements memory.Store using MongoDB
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "jarvas",
		Collection: "memories",
	}
}

// mongoMemory is the internal representation for MongoDB
type mongoMemory struct {
	ID         string         `bson:"_id"`
	UserID     string         `bson:"user_id"`
	Content    string         `bson:"content"`
	Type       string         `bson:"memory_type"`
	Importance int            `bson:"importance"`
	Metadata   map[string]any `bson:"metadata"`
	CreatedAt  time.Time      `bson:"created_at"`
}

// NewMongoStore creates a new MongoDB-based memory store
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(config.Database)
	collection := db.Collection(config.Collection)

	store := &MongoStore{
		client:     client,
		db:         db,
		collection: collection,
	}
	if err := store.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// createIndexes creates indexes for efficient per-user queries
func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}

	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Add upserts a memory.
func (s *MongoStore) Add(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	if mem.UserID == "" {
		return fmt.Errorf("memory user ID cannot be empty")
	}

	metadata := mem.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}

	mongoMem := mongoMemory{
		ID:         mem.ID,
		UserID:     mem.UserID,
		Content:    mem.Content,
		Type:       string(mem.Type),
		Importance: mem.Importance,
		Metadata:   metadata,
		CreatedAt:  mem.CreatedAt,
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"_id": mem.ID}

	_, err := s.collection.ReplaceOne(ctx, filter, mongoMem, opts)
	if err != nil {
		return fmt.Errorf("failed to add memory to MongoDB: %w", err)
	}
	return nil
}

// Search returns up to limit memories whose content matches the query,
// most important and newest first.
func (s *MongoStore) Search(ctx context.Context, userID, query string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	filter := bson.M{
		"user_id": userID,
		"content": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "importance", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer cursor.Close(ctx)
	return decodeMemories(ctx, cursor)
}

// Recent returns the newest memories first.
func (s *MongoStore) Recent(ctx context.Context, userID string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent memories: %w", err)
	}
	defer cursor.Close(ctx)
	return decodeMemories(ctx, cursor)
}

func decodeMemories(ctx context.Context, cursor *mongo.Cursor) ([]*memory.Memory, error) {
	var mongoMemories []mongoMemory
	if err := cursor.All(ctx, &mongoMemories); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}

	memories := make([]*memory.Memory, len(mongoMemories))
	for i, m := range mongoMemories {
		memories[i] = &memory.Memory{
			ID:         m.ID,
			UserID:     m.UserID,
			Content:    m.Content,
			Type:       memory.Type(m.Type),
			Importance: m.Importance,
			Metadata:   m.Metadata,
			CreatedAt:  m.CreatedAt,
		}
	}
	return memories, nil
}

// Clear removes all memories for a user.
func (s *MongoStore) Clear(ctx context.Context, userID string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

// Count returns the number of memories stored for a user.
func (s *MongoStore) Count(ctx context.Context, userID string) (int, error) {
	count, err := s.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return int(count), nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
