package domain

import (
	"context"
	"time"
)

// ChannelScope is a tenant's allow-list of provider channels. An absent or
// empty scope means allow everything (the backward-compatible default); a
// populated scope means allow only the listed channels.
type ChannelScope struct {
	TenantID         string    `json:"tenant_id"`
	ChannelIDs       []string  `json:"channel_ids"`
	LastConfiguredAt time.Time `json:"last_configured_at"`
}

func (s *ChannelScope) Contains(channelID string) bool {
	for _, id := range s.ChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

type ChannelScopeStore interface {
	// Put replaces the tenant's scope wholesale.
	Put(ctx context.Context, scope *ChannelScope) error

	// Get returns the tenant's scope, or ErrNotFound when none is configured.
	Get(ctx context.Context, tenantID string) (*ChannelScope, error)

	// Delete removes the tenant's scope, restoring the allow-all default.
	Delete(ctx context.Context, tenantID string) error
}
