package domain

import (
	"context"
	"time"
)

// SourceStatus is the probed connectivity of one source for one tenant.
// Erroring marks a source that has an installation but failed its probe, as
// opposed to one that is plainly not installed.
type SourceStatus struct {
	SourceType string    `json:"source_type"`
	Connected  bool      `json:"connected"`
	Erroring   bool      `json:"erroring,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	FromCache  bool      `json:"from_cache"`
}

// StatusSummary aggregates per-source results for one tenant.
type StatusSummary struct {
	Connected    int `json:"connected"`
	Disconnected int `json:"disconnected"`
	Erroring     int `json:"erroring"`
}

// StatusReport is the consolidated payload returned to the UI.
type StatusReport struct {
	TenantID  string                  `json:"tenant_id"`
	Sources   map[string]SourceStatus `json:"sources"`
	Summary   StatusSummary           `json:"summary"`
	FromCache bool                    `json:"from_cache"`
}

type StatusCache interface {
	// Get returns the cached status for (tenant, source type). Entries past
	// their TTL are a miss and return ErrNotFound.
	Get(ctx context.Context, tenantID, sourceType string) (*SourceStatus, error)

	// Put overwrites the cache entry with the given TTL.
	Put(ctx context.Context, tenantID, sourceType string, status SourceStatus, ttl time.Duration) error

	// Delete removes the entry for one source type, or every entry for the
	// tenant when sourceType is empty.
	Delete(ctx context.Context, tenantID, sourceType string) error
}
