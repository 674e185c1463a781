package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/rs/zerolog/log"
)

// ChannelSyncer refreshes the cached channel listing for a tenant.
type ChannelSyncer interface {
	SyncChannels(ctx context.Context, tenantID string) error
}

type PipelineDependencies struct {
	Router        *TenantRouter
	Filter        *ScopeFilter
	Normalizer    *Normalizer
	Messages      domain.MessageStore
	ChannelSyncer ChannelSyncer
}

// Pipeline is the steady-state ingestion path: route the event to its
// tenant, filter it against the tenant's channel scope, normalize it, and
// store the canonical record keyed idempotently by provider event id.
// Routing misses and scope rejections are expected noise from a shared
// provider-side app; they drop the event without raising an error.
type Pipeline struct {
	router        *TenantRouter
	filter        *ScopeFilter
	normalizer    *Normalizer
	messages      domain.MessageStore
	channelSyncer ChannelSyncer
	provider      string
}

func NewPipeline(deps PipelineDependencies) *Pipeline {
	return &Pipeline{
		router:        deps.Router,
		filter:        deps.Filter,
		normalizer:    deps.Normalizer,
		messages:      deps.Messages,
		channelSyncer: deps.ChannelSyncer,
		provider:      "slack",
	}
}

// Process handles one delivered envelope. Each event is independent; a
// failure here never reaches the provider, which already got its ack.
func (p *Pipeline) Process(ctx context.Context, envelope *domain.WebhookEnvelope) error {
	if envelope.Type != domain.EnvelopeTypeEventCallback || envelope.Event == nil {
		return nil
	}

	tenantID, err := p.router.Resolve(ctx, envelope.TeamID)
	if errors.Is(err, domain.ErrNoTenantForEvent) {
		log.Debug().
			Str("team_id", envelope.TeamID).
			Str("event_id", envelope.EventID).
			Msg("Dropping event with no owning tenant")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to route event %s: %w", envelope.EventID, err)
	}

	switch envelope.Event.Type {
	case domain.EventTypeMessage:
		return p.processMessage(ctx, tenantID, envelope)
	case domain.EventTypeChannelCreated, domain.EventTypeMemberJoinedChannel:
		p.refreshChannels(ctx, tenantID)
		return nil
	default:
		return nil
	}
}

func (p *Pipeline) processMessage(ctx context.Context, tenantID string, envelope *domain.WebhookEnvelope) error {
	event := envelope.Event

	// Bot echoes and message edits/deletes are not user messages.
	if event.BotID != "" || event.Subtype != "" {
		return nil
	}

	if err := p.filter.Check(ctx, tenantID, event.Channel); err != nil {
		if errors.Is(err, domain.ErrScopeRejected) {
			log.Debug().
				Str("tenant_id", tenantID).
				Str("channel", event.Channel).
				Str("event_id", envelope.EventID).
				Msg("Dropping event outside tenant channel scope")
			return nil
		}
		return err
	}

	message, err := p.normalizer.Normalize(ctx, tenantID, p.provider, envelope)
	if err != nil {
		return fmt.Errorf("failed to normalize event %s: %w", envelope.EventID, err)
	}

	if err := p.messages.Save(ctx, message); err != nil {
		return fmt.Errorf("failed to store message for event %s: %w", envelope.EventID, err)
	}

	return nil
}

func (p *Pipeline) refreshChannels(ctx context.Context, tenantID string) {
	if p.channelSyncer == nil {
		return
	}

	if err := p.channelSyncer.SyncChannels(ctx, tenantID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenantID).Msg("Channel refresh failed")
	}
}
