package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/rs/zerolog/log"
)

// TenantRouter resolves the owning tenant for an inbound event that only
// carries a provider-assigned team id. It keeps a rebuildable index over
// the installation store; a miss triggers one rebuild before the event is
// dropped. Resolution is deterministic: when two tenants somehow claim the
// same team id, the most recently updated active installation wins and the
// conflict is logged.
type TenantRouter struct {
	installations domain.InstallationStore

	mu    sync.RWMutex
	index map[string]routeEntry
}

type routeEntry struct {
	tenantID  string
	updatedAt time.Time
}

func NewTenantRouter(installations domain.InstallationStore) *TenantRouter {
	return &TenantRouter{
		installations: installations,
		index:         map[string]routeEntry{},
	}
}

// Resolve returns the tenant owning the provider team id, or
// ErrNoTenantForEvent when no active installation references it.
func (r *TenantRouter) Resolve(ctx context.Context, teamID string) (string, error) {
	if teamID == "" {
		return "", domain.ErrNoTenantForEvent
	}

	r.mu.RLock()
	entry, ok := r.index[teamID]
	r.mu.RUnlock()

	if ok {
		return entry.tenantID, nil
	}

	if err := r.Rebuild(ctx); err != nil {
		return "", err
	}

	r.mu.RLock()
	entry, ok = r.index[teamID]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("team %s: %w", teamID, domain.ErrNoTenantForEvent)
	}

	return entry.tenantID, nil
}

// Rebuild scans the installation store and atomically replaces the index.
func (r *TenantRouter) Rebuild(ctx context.Context) error {
	installations, err := r.installations.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan installations: %w", err)
	}

	fresh := make(map[string]routeEntry, len(installations))

	for _, installation := range installations {
		if !installation.IsActive() || installation.ProviderTeamID == "" {
			continue
		}

		existing, claimed := fresh[installation.ProviderTeamID]
		if claimed {
			log.Warn().
				Str("team_id", installation.ProviderTeamID).
				Str("tenant_a", existing.tenantID).
				Str("tenant_b", installation.TenantID).
				Msg("Multiple tenants claim the same provider team, keeping most recent")

			if !installation.UpdatedAt.After(existing.updatedAt) {
				continue
			}
		}

		fresh[installation.ProviderTeamID] = routeEntry{
			tenantID:  installation.TenantID,
			updatedAt: installation.UpdatedAt,
		}
	}

	r.mu.Lock()
	r.index = fresh
	r.mu.Unlock()

	return nil
}

// Invalidate drops one team from the index so the next event rebuilds it.
func (r *TenantRouter) Invalidate(teamID string) {
	r.mu.Lock()
	delete(r.index, teamID)
	r.mu.Unlock()
}
