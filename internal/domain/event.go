package domain

import "context"

// WebhookEnvelope is the outer payload of an inbound event callback. It
// carries the provider's team id but never the tenant id; routing resolves
// the tenant from the team id.
type WebhookEnvelope struct {
	Type      string        `json:"type"`
	Token     string        `json:"token,omitempty"`
	Challenge string        `json:"challenge,omitempty"`
	TeamID    string        `json:"team_id"`
	EventID   string        `json:"event_id"`
	EventTime int64         `json:"event_time"`
	Event     *InboundEvent `json:"event,omitempty"`
}

const (
	EnvelopeTypeURLVerification = "url_verification"
	EnvelopeTypeEventCallback   = "event_callback"
)

// InboundEvent is the inner, type-dependent event payload.
type InboundEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	User      string `json:"user,omitempty"`
	BotID     string `json:"bot_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Channel   string `json:"channel,omitempty"`
	TS        string `json:"ts,omitempty"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	EventTS   string `json:"event_ts,omitempty"`
}

const (
	EventTypeMessage             = "message"
	EventTypeChannelCreated      = "channel_created"
	EventTypeMemberJoinedChannel = "member_joined_channel"
)

// Channel is a provider-side sub-resource that can be allow-listed.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ProviderDirectory resolves human-readable identities for provider ids.
// Lookups are best effort; callers fall back to the raw id on failure.
type ProviderDirectory interface {
	UserName(ctx context.Context, tenantID, userID string) (string, error)
	ChannelName(ctx context.Context, tenantID, channelID string) (string, error)
	ListChannels(ctx context.Context, tenantID string) ([]Channel, error)
}

// TokenSource yields a decrypted access token for a tenant's installation.
type TokenSource interface {
	AccessToken(ctx context.Context, tenantID, provider string) (string, error)
}
