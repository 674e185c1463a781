package domain

import (
	"context"
	"time"
)

// CanonicalMessage is the normalized message record produced by webhook
// ingestion and consumed by downstream storage. ProviderEventID keys
// idempotent writes; Timestamp keeps sub-second precision because ordering
// drives thread association.
type CanonicalMessage struct {
	ID              string    `json:"id" bson:"_id"`
	TenantID        string    `json:"tenant_id" bson:"tenant_id"`
	Provider        string    `json:"provider" bson:"provider"`
	ProviderEventID string    `json:"provider_event_id" bson:"provider_event_id"`
	ChannelID       string    `json:"channel_id" bson:"channel_id"`
	ChannelName     string    `json:"channel_name" bson:"channel_name"`
	UserID          string    `json:"user_id" bson:"user_id"`
	UserName        string    `json:"user_name" bson:"user_name"`
	Text            string    `json:"text" bson:"text"`
	ThreadID        string    `json:"thread_id,omitempty" bson:"thread_id,omitempty"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
}

type MessageStore interface {
	// Save writes the message unless a record with the same provider event
	// id already exists for the tenant. Duplicate deliveries are a no-op.
	Save(ctx context.Context, message *CanonicalMessage) error
}
