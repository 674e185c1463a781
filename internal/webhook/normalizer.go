package webhook

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

var (
	userMentionPattern    = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|([^>]+))?>`)
	channelMentionPattern = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|([^>]+))?>`)
	linkPattern           = regexp.MustCompile(`<(https?://[^|>]+)(?:\|([^>]+))?>`)
	broadcastPattern      = regexp.MustCompile(`<!(here|channel|everyone)>`)

	entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// Normalizer converts provider events into canonical message records.
// Identity lookups are best effort: a failed lookup falls back to the raw
// provider id and never fails the ingestion.
type Normalizer struct {
	directory     domain.ProviderDirectory
	lookupTimeout time.Duration
}

func NewNormalizer(directory domain.ProviderDirectory) *Normalizer {
	return &Normalizer{
		directory:     directory,
		lookupTimeout: 3 * time.Second,
	}
}

// Normalize builds the canonical record for a routed message event.
func (n *Normalizer) Normalize(ctx context.Context, tenantID, provider string, envelope *domain.WebhookEnvelope) (*domain.CanonicalMessage, error) {
	event := envelope.Event
	if event == nil || event.Type != domain.EventTypeMessage {
		return nil, fmt.Errorf("not a message event: %q", envelopeEventType(envelope))
	}

	timestamp, err := ParseEventTimestamp(event.TS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event timestamp %q: %w", event.TS, err)
	}

	return &domain.CanonicalMessage{
		ID:              xid.New().String(),
		TenantID:        tenantID,
		Provider:        provider,
		ProviderEventID: envelope.EventID,
		ChannelID:       event.Channel,
		ChannelName:     n.channelName(ctx, tenantID, event.Channel),
		UserID:          event.User,
		UserName:        n.userName(ctx, tenantID, event.User),
		Text:            n.CanonicalText(ctx, tenantID, event.Text),
		ThreadID:        event.ThreadTS,
		Timestamp:       timestamp,
	}, nil
}

// CanonicalText rewrites provider markup into plain canonical text: user
// and channel mentions become @name/#name, links keep their label and URL,
// broadcast tokens become @here style, and HTML entities are unescaped.
// Already-canonical text passes through unchanged.
func (n *Normalizer) CanonicalText(ctx context.Context, tenantID, text string) string {
	out := userMentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := userMentionPattern.FindStringSubmatch(match)
		if groups[2] != "" {
			return "@" + groups[2]
		}
		return "@" + n.userName(ctx, tenantID, groups[1])
	})

	out = channelMentionPattern.ReplaceAllStringFunc(out, func(match string) string {
		groups := channelMentionPattern.FindStringSubmatch(match)
		if groups[2] != "" {
			return "#" + groups[2]
		}
		return "#" + n.channelName(ctx, tenantID, groups[1])
	})

	out = linkPattern.ReplaceAllStringFunc(out, func(match string) string {
		groups := linkPattern.FindStringSubmatch(match)
		if groups[2] != "" {
			return fmt.Sprintf("%s (%s)", groups[2], groups[1])
		}
		return groups[1]
	})

	out = broadcastPattern.ReplaceAllString(out, "@$1")

	return unescapeEntities(out)
}

// unescapeEntities decodes &lt;/&gt;/&amp; until the text stops changing.
// Nested encodings like "&amp;lt;" decode all the way down, so canonical
// text never contains an entity and re-normalizing it is a no-op.
func unescapeEntities(text string) string {
	for {
		decoded := entityReplacer.Replace(text)
		if decoded == text {
			return decoded
		}
		text = decoded
	}
}

func (n *Normalizer) userName(ctx context.Context, tenantID, userID string) string {
	if userID == "" || n.directory == nil {
		return userID
	}

	lookupCtx, cancel := context.WithTimeout(ctx, n.lookupTimeout)
	defer cancel()

	name, err := n.directory.UserName(lookupCtx, tenantID, userID)
	if err != nil || name == "" {
		log.Debug().Err(err).Str("user_id", userID).Msg("User lookup failed, keeping raw id")
		return userID
	}

	return name
}

func (n *Normalizer) channelName(ctx context.Context, tenantID, channelID string) string {
	if channelID == "" || n.directory == nil {
		return channelID
	}

	lookupCtx, cancel := context.WithTimeout(ctx, n.lookupTimeout)
	defer cancel()

	name, err := n.directory.ChannelName(lookupCtx, tenantID, channelID)
	if err != nil || name == "" {
		log.Debug().Err(err).Str("channel_id", channelID).Msg("Channel lookup failed, keeping raw id")
		return channelID
	}

	return name
}

// ParseEventTimestamp converts a provider timestamp of epoch seconds with a
// fractional part ("1726312345.001200") into a time.Time. The fraction is
// preserved because sub-second ordering drives thread association.
func ParseEventTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	secPart, fracPart, _ := strings.Cut(ts, ".")

	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		for len(fracPart) < 9 {
			fracPart += "0"
		}
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}

	return time.Unix(sec, nsec).UTC(), nil
}

func envelopeEventType(envelope *domain.WebhookEnvelope) string {
	if envelope.Event == nil {
		return ""
	}
	return envelope.Event.Type
}
