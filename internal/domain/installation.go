package domain

import (
	"context"
	"time"
)

type InstallationStatus string

const (
	InstallationStatusActive  InstallationStatus = "active"
	InstallationStatusRevoked InstallationStatus = "revoked"
)

// Installation records a tenant's authorized connection to a provider.
// At most one active installation exists per (tenant, provider); a repeat
// install overwrites it. Installations are soft-revoked, never deleted,
// so the audit trail survives disconnects.
type Installation struct {
	TenantID            string             `json:"tenant_id"`
	Provider            string             `json:"provider"`
	ProviderTeamID      string             `json:"provider_team_id"`
	ProviderTeamName    string             `json:"provider_team_name"`
	EncryptedCredential []byte             `json:"encrypted_credential"`
	Status              InstallationStatus `json:"status"`
	InstalledAt         time.Time          `json:"installed_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func (i *Installation) IsActive() bool {
	return i.Status == InstallationStatusActive
}

// CredentialBundle is the decrypted form of an installation's credentials.
// It lives in memory only for the span of a single operation; the cipher
// boundary owns every durable copy.
type CredentialBundle struct {
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token,omitempty"`
	Expiry            time.Time `json:"expiry,omitzero"`
	Scopes            []string  `json:"scopes,omitempty"`
	ProviderAccountID string    `json:"provider_account_id,omitempty"`
}

type InstallationStore interface {
	// Upsert writes the installation, replacing any existing record for
	// the same (tenant, provider) key.
	Upsert(ctx context.Context, installation *Installation) error

	// Get returns the installation for (tenant, provider), or ErrNotFound.
	Get(ctx context.Context, tenantID, provider string) (*Installation, error)

	// List returns every installation across all tenants. Used to rebuild
	// the webhook routing index.
	List(ctx context.Context) ([]*Installation, error)

	// SetStatus updates the lifecycle status of one installation.
	SetStatus(ctx context.Context, tenantID, provider string, status InstallationStatus) error

	// EraseCredential permanently removes the encrypted credential bytes
	// while keeping the rest of the record (hard disconnect).
	EraseCredential(ctx context.Context, tenantID, provider string) error
}
