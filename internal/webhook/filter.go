package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"
)

// ScopeFilter decides whether a tenant accepts events from a channel. It
// runs before normalization and storage to bound per-tenant ingestion cost.
type ScopeFilter struct {
	scopes domain.ChannelScopeStore
}

func NewScopeFilter(scopes domain.ChannelScopeStore) *ScopeFilter {
	return &ScopeFilter{scopes: scopes}
}

// Check returns nil when the tenant has no configured scope (allow-all
// default) or the channel is on the allow-list, and ErrScopeRejected when
// the channel falls outside the configured scope.
func (f *ScopeFilter) Check(ctx context.Context, tenantID, channelID string) error {
	scope, err := f.scopes.Get(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load channel scope for %s: %w", tenantID, err)
	}

	if len(scope.ChannelIDs) == 0 {
		return nil
	}

	if !scope.Contains(channelID) {
		return fmt.Errorf("channel %s outside scope of %s: %w", channelID, tenantID, domain.ErrScopeRejected)
	}

	return nil
}
