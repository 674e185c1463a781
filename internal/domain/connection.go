package domain

import (
	"context"
	"time"
)

// ConnectionState tracks whether one of a tenant's sources is connected.
// Lighter integrations that never go through the OAuth installer only have
// this record. Absence of a record means disconnected.
type ConnectionState struct {
	TenantID       string     `json:"tenant_id"`
	SourceType     string     `json:"source_type"`
	Connected      bool       `json:"connected"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	LastActivity   time.Time  `json:"last_activity"`
}

type ConnectionStateStore interface {
	// Put writes the state for (tenant, source type), last write wins.
	Put(ctx context.Context, state *ConnectionState) error

	// Get returns the state for (tenant, source type), or ErrNotFound.
	Get(ctx context.Context, tenantID, sourceType string) (*ConnectionState, error)

	// List returns every connection state record. Used by the inactivity sweep.
	List(ctx context.Context) ([]*ConnectionState, error)

	// Delete removes one record. Missing records are not an error.
	Delete(ctx context.Context, tenantID, sourceType string) error
}
