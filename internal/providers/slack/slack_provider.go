package slackprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

const channelCacheTTL = 5 * time.Minute

var _ domain.ProviderDirectory = (*Provider)(nil)

type cachedChannels struct {
	channels  []domain.Channel
	fetchedAt time.Time
}

// Provider talks to the Slack Web API on behalf of a tenant's installation.
// It resolves user and channel names for normalization and keeps a short
// lived per-tenant channel listing so webhook-driven refreshes and scope
// editors do not hammer conversations.list.
type Provider struct {
	tokens domain.TokenSource

	mu       sync.RWMutex
	channels map[string]cachedChannels
}

func NewProvider(tokens domain.TokenSource) *Provider {
	return &Provider{
		tokens:   tokens,
		channels: map[string]cachedChannels{},
	}
}

func (p *Provider) client(ctx context.Context, tenantID string) (*slack.Client, error) {
	token, err := p.tokens.AccessToken(ctx, tenantID, "slack")
	if err != nil {
		return nil, fmt.Errorf("failed to load slack token: %w", err)
	}

	return slack.New(token), nil
}

func (p *Provider) UserName(ctx context.Context, tenantID, userID string) (string, error) {
	client, err := p.client(ctx, tenantID)
	if err != nil {
		return "", err
	}

	user, err := client.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", userID, err)
	}

	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName, nil
	}
	return user.Name, nil
}

func (p *Provider) ChannelName(ctx context.Context, tenantID, channelID string) (string, error) {
	if name, ok := p.cachedChannelName(tenantID, channelID); ok {
		return name, nil
	}

	client, err := p.client(ctx, tenantID)
	if err != nil {
		return "", err
	}

	channel, err := client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up channel %s: %w", channelID, err)
	}

	return channel.Name, nil
}

func (p *Provider) ListChannels(ctx context.Context, tenantID string) ([]domain.Channel, error) {
	p.mu.RLock()
	cached, ok := p.channels[tenantID]
	p.mu.RUnlock()

	if ok && time.Since(cached.fetchedAt) < channelCacheTTL {
		return cached.channels, nil
	}

	return p.fetchChannels(ctx, tenantID)
}

// SyncChannels refreshes the cached channel listing regardless of age.
func (p *Provider) SyncChannels(ctx context.Context, tenantID string) error {
	channels, err := p.fetchChannels(ctx, tenantID)
	if err != nil {
		return err
	}

	log.Debug().
		Str("tenant_id", tenantID).
		Int("channel_count", len(channels)).
		Msg("Refreshed slack channel listing")

	return nil
}

func (p *Provider) fetchChannels(ctx context.Context, tenantID string) ([]domain.Channel, error) {
	client, err := p.client(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var (
		channels []domain.Channel
		cursor   string
	)

	for {
		conversations, nextCursor, err := client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel"},
			ExcludeArchived: true,
			Limit:           200,
			Cursor:          cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list channels: %w", err)
		}

		for _, conversation := range conversations {
			channels = append(channels, domain.Channel{
				ID:   conversation.ID,
				Name: conversation.Name,
			})
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	p.mu.Lock()
	p.channels[tenantID] = cachedChannels{channels: channels, fetchedAt: time.Now()}
	p.mu.Unlock()

	return channels, nil
}

func (p *Provider) cachedChannelName(tenantID, channelID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cached, ok := p.channels[tenantID]
	if !ok || time.Since(cached.fetchedAt) >= channelCacheTTL {
		return "", false
	}

	for _, channel := range cached.channels {
		if channel.ID == channelID {
			return channel.Name, true
		}
	}
	return "", false
}
