package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/receipt-tracker/backend/internal/models"
)

// MongoStore archives raw analyzer output, one document per scanned receipt.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("extractions")}
}

// ConnectMongo opens a client for uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

func (s *MongoStore) InsertExtraction(ctx context.Context, ext *models.Extraction) error {
	if ext.CreatedAt.IsZero() {
		ext.CreatedAt = time.Now().UTC()
	}
	if _, err := s.col.InsertOne(ctx, ext); err != nil {
		return fmt.Errorf("mongo insert: %w", err)
	}
	return nil
}

// GetExtraction returns the latest extraction of a receipt, or nil, nil when none exists.
func (s *MongoStore) GetExtraction(ctx context.Context, userID, receiptID int64) (*models.Extraction, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var ext models.Extraction
	err := s.col.FindOne(ctx, bson.M{"user_id": userID, "receipt_id": receiptID}, opts).Decode(&ext)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	return &ext, nil
}

// DeleteExtractions removes every archived extraction of a receipt.
func (s *MongoStore) DeleteExtractions(ctx context.Context, userID, receiptID int64) error {
	if _, err := s.col.DeleteMany(ctx, bson.M{"user_id": userID, "receipt_id": receiptID}); err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	return nil
}
