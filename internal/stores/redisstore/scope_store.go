package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.ChannelScopeStore = (*ChannelScopeStore)(nil)

const scopePrefix = "channelscope:"

// ChannelScopeStore persists per-tenant channel allow-lists.
type ChannelScopeStore struct {
	client *redis.Client
}

func NewChannelScopeStore(client *redis.Client) *ChannelScopeStore {
	return &ChannelScopeStore{client: client}
}

func (s *ChannelScopeStore) Put(ctx context.Context, scope *domain.ChannelScope) error {
	data, err := json.Marshal(scope)
	if err != nil {
		return fmt.Errorf("failed to marshal channel scope: %w", err)
	}

	if err := s.client.Set(ctx, scopePrefix+scope.TenantID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save channel scope: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

func (s *ChannelScopeStore) Get(ctx context.Context, tenantID string) (*domain.ChannelScope, error) {
	data, err := s.client.Get(ctx, scopePrefix+tenantID).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel scope: %w: %w", domain.ErrStoreUnavailable, err)
	}

	var scope domain.ChannelScope
	if err := json.Unmarshal(data, &scope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel scope: %w", err)
	}

	return &scope, nil
}

func (s *ChannelScopeStore) Delete(ctx context.Context, tenantID string) error {
	if err := s.client.Del(ctx, scopePrefix+tenantID).Err(); err != nil {
		return fmt.Errorf("failed to delete channel scope: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
