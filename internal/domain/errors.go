package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no record exists for a key.
	ErrNotFound = errors.New("not found")

	// ErrCredentialCorrupt signals that a stored credential blob failed
	// authenticated decryption. Callers treat the installation as invalid
	// and prompt re-authorization.
	ErrCredentialCorrupt = errors.New("credential corrupt")

	// ErrInvalidState signals an OAuth callback whose state parameter did
	// not verify. The callback is rejected and nothing is installed.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrNoTenantForEvent signals a webhook whose provider team id matches
	// no tenant. The event is dropped, never routed to a default tenant.
	ErrNoTenantForEvent = errors.New("no tenant for event")

	// ErrScopeRejected signals an event for a channel outside the tenant's
	// configured allow-list. Dropped silently, not a processing error.
	ErrScopeRejected = errors.New("channel not in tenant scope")

	// ErrStoreUnavailable signals a durable-storage failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ProviderAuthError wraps an authorization or token-exchange failure,
// preserving the provider's raw error code for diagnostics.
type ProviderAuthError struct {
	Provider string
	Code     string
	Err      error
}

func (e *ProviderAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider auth failed for %s (%s): %v", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("provider auth failed for %s (%s)", e.Provider, e.Code)
}

func (e *ProviderAuthError) Unwrap() error {
	return e.Err
}
