package mongostore

import (
	"context"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ domain.MessageStore = (*MessageStore)(nil)

// MessageStore writes canonical messages to MongoDB. A unique filter on
// (tenant_id, provider_event_id) with $setOnInsert makes duplicate webhook
// deliveries a no-op, so out-of-order redelivery cannot duplicate records.
type MessageStore struct {
	collection *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{collection: db.Collection("messages")}
}

func (s *MessageStore) Save(ctx context.Context, message *domain.CanonicalMessage) error {
	filter := bson.M{
		"tenant_id":         message.TenantID,
		"provider_event_id": message.ProviderEventID,
	}

	update := bson.M{"$setOnInsert": message}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// EnsureIndexes creates the unique index backing idempotent writes.
func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "provider_event_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	return nil
}
