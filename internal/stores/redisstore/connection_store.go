package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.ConnectionStateStore = (*ConnectionStateStore)(nil)

const connectionPrefix = "connstate:"

// ConnectionStateStore persists per-(tenant, source) connection records.
type ConnectionStateStore struct {
	client *redis.Client
}

func NewConnectionStateStore(client *redis.Client) *ConnectionStateStore {
	return &ConnectionStateStore{client: client}
}

func connectionKey(tenantID, sourceType string) string {
	return connectionPrefix + tenantID + "/" + sourceType
}

func (s *ConnectionStateStore) Put(ctx context.Context, state *domain.ConnectionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal connection state: %w", err)
	}

	if err := s.client.Set(ctx, connectionKey(state.TenantID, state.SourceType), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save connection state: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

func (s *ConnectionStateStore) Get(ctx context.Context, tenantID, sourceType string) (*domain.ConnectionState, error) {
	data, err := s.client.Get(ctx, connectionKey(tenantID, sourceType)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection state: %w: %w", domain.ErrStoreUnavailable, err)
	}

	var state domain.ConnectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection state: %w", err)
	}

	return &state, nil
}

func (s *ConnectionStateStore) List(ctx context.Context) ([]*domain.ConnectionState, error) {
	var states []*domain.ConnectionState

	iter := s.client.Scan(ctx, 0, connectionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get connection state %s: %w: %w", iter.Val(), domain.ErrStoreUnavailable, err)
		}

		var state domain.ConnectionState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connection state %s: %w", iter.Val(), err)
		}

		states = append(states, &state)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan connection states: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return states, nil
}

func (s *ConnectionStateStore) Delete(ctx context.Context, tenantID, sourceType string) error {
	if err := s.client.Del(ctx, connectionKey(tenantID, sourceType)).Err(); err != nil {
		return fmt.Errorf("failed to delete connection state: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
