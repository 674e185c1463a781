package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/redis/go-redis/v9"
)

var _ domain.StatusCache = (*StatusCache)(nil)

const statusPrefix = "statuscache:"

// StatusCache holds probed source statuses under native Redis TTLs, so a
// read past the entry's expiry is simply a miss.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func statusKey(tenantID, sourceType string) string {
	return statusPrefix + tenantID + ":" + sourceType
}

func (c *StatusCache) Get(ctx context.Context, tenantID, sourceType string) (*domain.SourceStatus, error) {
	data, err := c.client.Get(ctx, statusKey(tenantID, sourceType)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status cache entry: %w: %w", domain.ErrStoreUnavailable, err)
	}

	var status domain.SourceStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status cache entry: %w", err)
	}

	return &status, nil
}

func (c *StatusCache) Put(ctx context.Context, tenantID, sourceType string, status domain.SourceStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status cache entry: %w", err)
	}

	if err := c.client.Set(ctx, statusKey(tenantID, sourceType), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status cache entry: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}

// Delete removes one entry, or every entry for the tenant when sourceType
// is empty.
func (c *StatusCache) Delete(ctx context.Context, tenantID, sourceType string) error {
	if sourceType != "" {
		if err := c.client.Del(ctx, statusKey(tenantID, sourceType)).Err(); err != nil {
			return fmt.Errorf("failed to delete status cache entry: %w: %w", domain.ErrStoreUnavailable, err)
		}
		return nil
	}

	iter := c.client.Scan(ctx, 0, statusPrefix+tenantID+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete status cache entry %s: %w: %w", iter.Val(), domain.ErrStoreUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan status cache entries: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return nil
}
