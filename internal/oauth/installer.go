package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidegate/tidegate/internal/domain"
	"github.com/tidegate/tidegate/internal/secrets"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Phase tracks how far an installation attempt progressed.
type Phase string

const (
	PhaseNotStarted             Phase = "not_started"
	PhaseAuthorizationRequested Phase = "authorization_requested"
	PhaseCodeReceived           Phase = "code_received"
	PhaseTokenExchanged         Phase = "token_exchanged"
	PhaseStored                 Phase = "stored"
	PhaseFailed                 Phase = "failed"
)

// ProviderConfig describes one OAuth provider the gateway can install.
type ProviderConfig struct {
	Name string

	// OAuth carries client id/secret, endpoints, scopes and redirect URL.
	OAuth oauth2.Config

	// SourceType is the connection-state key flipped on install/disconnect,
	// e.g. "slack-mcp" for the slack provider.
	SourceType string
}

// ChannelSyncer refreshes the provider channel listing after an install.
// Sync failures never fail the installation.
type ChannelSyncer interface {
	SyncChannels(ctx context.Context, tenantID string) error
}

// ConnectionMarker flips a tenant source's connection state.
type ConnectionMarker interface {
	MarkConnected(ctx context.Context, tenantID, sourceType string) error
	MarkDisconnected(ctx context.Context, tenantID, sourceType string) error
}

// RouteIndex drops cached webhook routing for a provider team. Installs and
// disconnects change who owns a team id, so the index must not keep serving
// the old answer.
type RouteIndex interface {
	Invalidate(teamID string)
}

type InstallerDependencies struct {
	Providers     map[string]ProviderConfig
	Cipher        *secrets.Cipher
	Installations domain.InstallationStore
	Connections   ConnectionMarker
	StatusCache   domain.StatusCache
	ChannelSyncer ChannelSyncer
	Routes        RouteIndex
	StateSecret   []byte

	// ExchangeTimeout bounds the outbound token-exchange call.
	ExchangeTimeout time.Duration
}

// Installer drives the OAuth flow: builds authorization URLs carrying a
// signed state, exchanges callback codes for tokens, and persists the
// encrypted result as an installation upsert.
type Installer struct {
	providers       map[string]ProviderConfig
	cipher          *secrets.Cipher
	installations   domain.InstallationStore
	connections     ConnectionMarker
	statusCache     domain.StatusCache
	channelSyncer   ChannelSyncer
	routes          RouteIndex
	stateSecret     []byte
	exchangeTimeout time.Duration
}

func NewInstaller(deps InstallerDependencies) *Installer {
	timeout := deps.ExchangeTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Installer{
		providers:       deps.Providers,
		cipher:          deps.Cipher,
		installations:   deps.Installations,
		connections:     deps.Connections,
		statusCache:     deps.StatusCache,
		channelSyncer:   deps.ChannelSyncer,
		routes:          deps.Routes,
		stateSecret:     deps.StateSecret,
		exchangeTimeout: timeout,
	}
}

// InstallResult reports a completed (or failed) installation attempt.
type InstallResult struct {
	TenantID         string
	Provider         string
	ProviderTeamID   string
	ProviderTeamName string
	Phase            Phase
}

// AuthorizeURL builds the provider's authorization redirect for a tenant.
// The state parameter is a signed token binding the attempt to the tenant
// and a fresh nonce.
func (i *Installer) AuthorizeURL(provider, tenantID string) (string, error) {
	cfg, ok := i.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q: %w", provider, domain.ErrNotFound)
	}

	state, err := signState(i.stateSecret, tenantID)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("provider", provider).
		Str("tenant_id", tenantID).
		Str("phase", string(PhaseAuthorizationRequested)).
		Msg("Authorization requested")

	return cfg.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// HandleCallback completes the flow for an authorization callback. A
// provider-reported error or a failed exchange becomes a ProviderAuthError
// with the raw code preserved; a state that does not verify is rejected
// before anything is exchanged.
func (i *Installer) HandleCallback(ctx context.Context, provider, code, state, providerErr string) (*InstallResult, error) {
	cfg, ok := i.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", provider, domain.ErrNotFound)
	}

	if providerErr != "" {
		return nil, &domain.ProviderAuthError{Provider: provider, Code: providerErr}
	}

	tenantID, nonce, err := parseState(i.stateSecret, state)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("provider", provider).
		Str("tenant_id", tenantID).
		Str("nonce", nonce).
		Str("phase", string(PhaseCodeReceived)).
		Msg("Authorization code received")

	exchangeCtx, cancel := context.WithTimeout(ctx, i.exchangeTimeout)
	defer cancel()

	token, err := cfg.OAuth.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, &domain.ProviderAuthError{
			Provider: provider,
			Code:     exchangeErrorCode(err),
			Err:      err,
		}
	}

	teamID, teamName := teamIdentity(token)

	bundle := domain.CredentialBundle{
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		Expiry:            token.Expiry,
		Scopes:            grantedScopes(token),
		ProviderAccountID: accountIdentity(token),
	}

	blob, err := i.cipher.Encrypt(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential bundle: %w", err)
	}

	now := time.Now().UTC()
	installation := &domain.Installation{
		TenantID:            tenantID,
		Provider:            provider,
		ProviderTeamID:      teamID,
		ProviderTeamName:    teamName,
		EncryptedCredential: blob,
		Status:              domain.InstallationStatusActive,
		InstalledAt:         now,
		UpdatedAt:           now,
	}

	if err := i.installations.Upsert(ctx, installation); err != nil {
		return nil, fmt.Errorf("failed to store installation: %w", err)
	}

	if i.routes != nil && teamID != "" {
		i.routes.Invalidate(teamID)
	}

	if i.connections != nil && cfg.SourceType != "" {
		if err := i.connections.MarkConnected(ctx, tenantID, cfg.SourceType); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("source_type", cfg.SourceType).
				Msg("Failed to mark source connected after install")
		}
	}

	if i.statusCache != nil {
		if err := i.statusCache.Delete(ctx, tenantID, ""); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to invalidate status cache after install")
		}
	}

	i.syncChannels(ctx, tenantID, provider)

	log.Info().
		Str("provider", provider).
		Str("tenant_id", tenantID).
		Str("team_id", teamID).
		Str("phase", string(PhaseStored)).
		Msg("Installation stored")

	return &InstallResult{
		TenantID:         tenantID,
		Provider:         provider,
		ProviderTeamID:   teamID,
		ProviderTeamName: teamName,
		Phase:            PhaseStored,
	}, nil
}

// Disconnect revokes an installation. Soft mode keeps the record (and its
// credential) for reconnect; hard mode erases the stored credential bytes
// permanently. Both modes flip connection state and invalidate the tenant's
// status cache so the UI never shows a stale "connected".
func (i *Installer) Disconnect(ctx context.Context, tenantID, provider string, hard bool) error {
	installation, err := i.installations.Get(ctx, tenantID, provider)
	if err != nil {
		return fmt.Errorf("failed to load installation: %w", err)
	}

	if err := i.installations.SetStatus(ctx, tenantID, provider, domain.InstallationStatusRevoked); err != nil {
		return fmt.Errorf("failed to revoke installation: %w", err)
	}

	if hard {
		if err := i.installations.EraseCredential(ctx, tenantID, provider); err != nil {
			return fmt.Errorf("failed to erase credential: %w", err)
		}
	}

	// The routing index must stop mapping this team before the next webhook
	// arrives, or events keep landing on the revoked tenant.
	if i.routes != nil && installation.ProviderTeamID != "" {
		i.routes.Invalidate(installation.ProviderTeamID)
	}

	if cfg, ok := i.providers[provider]; ok && i.connections != nil && cfg.SourceType != "" {
		if err := i.connections.MarkDisconnected(ctx, tenantID, cfg.SourceType); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", tenantID).
				Str("source_type", cfg.SourceType).
				Msg("Failed to mark source disconnected")
		}
	}

	if i.statusCache != nil {
		if err := i.statusCache.Delete(ctx, tenantID, ""); err != nil {
			log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Failed to invalidate status cache after disconnect")
		}
	}

	log.Info().
		Str("provider", provider).
		Str("tenant_id", tenantID).
		Bool("hard", hard).
		Msg("Installation disconnected")

	return nil
}

func (i *Installer) syncChannels(ctx context.Context, tenantID, provider string) {
	if i.channelSyncer == nil {
		return
	}

	if err := i.channelSyncer.SyncChannels(ctx, tenantID); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("provider", provider).
			Msg("Channel sync after install failed")
	}
}

// exchangeErrorCode pulls the provider's raw error code out of a failed
// token exchange for diagnostics.
func exchangeErrorCode(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
		if retrieveErr.Response != nil {
			return retrieveErr.Response.Status
		}
	}
	return "exchange_failed"
}

// teamIdentity extracts the provider workspace identity from the token
// response extras. Slack's oauth.v2.access returns a team object; other
// providers may return a bare team_id or nothing.
func teamIdentity(token *oauth2.Token) (id, name string) {
	if team, ok := token.Extra("team").(map[string]any); ok {
		id, _ = team["id"].(string)
		name, _ = team["name"].(string)
	}

	if id == "" {
		if v, ok := token.Extra("team_id").(string); ok {
			id = v
		}
	}

	return id, name
}

func accountIdentity(token *oauth2.Token) string {
	if v, ok := token.Extra("bot_user_id").(string); ok && v != "" {
		return v
	}

	if authed, ok := token.Extra("authed_user").(map[string]any); ok {
		if v, ok := authed["id"].(string); ok {
			return v
		}
	}

	return ""
}

func grantedScopes(token *oauth2.Token) []string {
	raw, ok := token.Extra("scope").(string)
	if !ok || raw == "" {
		return nil
	}

	var scopes []string
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' }) {
		scopes = append(scopes, s)
	}
	return scopes
}
