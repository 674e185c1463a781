package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.InstallationStore = (*InstallationStore)(nil)

const installationPrefix = "installation:"

// InstallationStore persists installations in Redis, one JSON record per
// (tenant, provider) key. SET gives per-key last-write-wins upserts.
type InstallationStore struct {
	client *redis.Client
}

func NewInstallationStore(client *redis.Client) *InstallationStore {
	return &InstallationStore{client: client}
}

func installationKey(tenantID, provider string) string {
	return installationPrefix + tenantID + "/" + provider
}

func (s *InstallationStore) Upsert(ctx context.Context, installation *domain.Installation) error {
	installation.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(installation)
	if err != nil {
		return fmt.Errorf("failed to marshal installation: %w", err)
	}

	if err := s.client.Set(ctx, installationKey(installation.TenantID, installation.Provider), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save installation: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

func (s *InstallationStore) Get(ctx context.Context, tenantID, provider string) (*domain.Installation, error) {
	data, err := s.client.Get(ctx, installationKey(tenantID, provider)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation: %w: %w", domain.ErrStoreUnavailable, err)
	}

	var installation domain.Installation
	if err := json.Unmarshal(data, &installation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal installation: %w", err)
	}

	return &installation, nil
}

func (s *InstallationStore) List(ctx context.Context) ([]*domain.Installation, error) {
	var installations []*domain.Installation

	iter := s.client.Scan(ctx, 0, installationPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get installation %s: %w: %w", iter.Val(), domain.ErrStoreUnavailable, err)
		}

		var installation domain.Installation
		if err := json.Unmarshal(data, &installation); err != nil {
			return nil, fmt.Errorf("failed to unmarshal installation %s: %w", iter.Val(), err)
		}

		installations = append(installations, &installation)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan installations: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return installations, nil
}

func (s *InstallationStore) SetStatus(ctx context.Context, tenantID, provider string, status domain.InstallationStatus) error {
	installation, err := s.Get(ctx, tenantID, provider)
	if err != nil {
		return err
	}

	installation.Status = status

	return s.Upsert(ctx, installation)
}

func (s *InstallationStore) EraseCredential(ctx context.Context, tenantID, provider string) error {
	installation, err := s.Get(ctx, tenantID, provider)
	if err != nil {
		return err
	}

	installation.EncryptedCredential = nil

	return s.Upsert(ctx, installation)
}
