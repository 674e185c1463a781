package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidegate/tidegate/internal/domain"
	"github.com/tidegate/tidegate/internal/oauth"
	"github.com/tidegate/tidegate/internal/status"
	"github.com/tidegate/tidegate/internal/webhook"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// webhookProcessTimeout bounds background processing of one delivery. The
// HTTP acknowledgment never waits on it.
const webhookProcessTimeout = 30 * time.Second

type GatewayController struct {
	installer  *oauth.Installer
	pipeline   *webhook.Pipeline
	aggregator *status.Aggregator
	scopes     domain.ChannelScopeStore
	directory  domain.ProviderDirectory
	uiBaseURL  string
}

type GatewayControllerDependencies struct {
	Installer  *oauth.Installer
	Pipeline   *webhook.Pipeline
	Aggregator *status.Aggregator
	Scopes     domain.ChannelScopeStore
	Directory  domain.ProviderDirectory

	// UIBaseURL is where the OAuth callback sends the user's browser after
	// the flow finishes.
	UIBaseURL string
}

func NewGatewayController(deps GatewayControllerDependencies) *GatewayController {
	return &GatewayController{
		installer:  deps.Installer,
		pipeline:   deps.Pipeline,
		aggregator: deps.Aggregator,
		scopes:     deps.Scopes,
		directory:  deps.Directory,
		uiBaseURL:  deps.UIBaseURL,
	}
}

// Authorize starts the OAuth flow by redirecting the browser to the
// provider's consent page.
func (c *GatewayController) Authorize(ctx fiber.Ctx) error {
	provider := ctx.Params("provider")
	tenantID := ctx.Query("tenant_id")

	if tenantID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "tenant_id is required")
	}

	authorizeURL, err := c.installer.AuthorizeURL(provider, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Unknown provider")
	}
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("Failed to build authorization URL")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start authorization")
	}

	return ctx.Redirect().To(authorizeURL)
}

// Callback completes the OAuth flow when the provider redirects back, then
// sends the browser to the success or error page.
func (c *GatewayController) Callback(ctx fiber.Ctx) error {
	provider := ctx.Params("provider")

	result, err := c.installer.HandleCallback(
		ctx.RequestCtx(),
		provider,
		ctx.Query("code"),
		ctx.Query("state"),
		ctx.Query("error"),
	)
	if err != nil {
		var authErr *domain.ProviderAuthError
		switch {
		case errors.As(err, &authErr):
			return c.redirectToResultPage(ctx, provider, url.Values{"error": {authErr.Code}})
		case errors.Is(err, domain.ErrInvalidState):
			return fiber.NewError(fiber.StatusBadRequest, "Invalid or expired state")
		case errors.Is(err, domain.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "Unknown provider")
		default:
			log.Error().Err(err).Str("provider", provider).Msg("Installation failed")
			return c.redirectToResultPage(ctx, provider, url.Values{"error": {"installation_failed"}})
		}
	}

	return c.redirectToResultPage(ctx, provider, url.Values{
		"tenant_id": {result.TenantID},
		"team":      {result.ProviderTeamName},
	})
}

func (c *GatewayController) redirectToResultPage(ctx fiber.Ctx, provider string, params url.Values) error {
	target := fmt.Sprintf("%s/integrations/%s?%s", c.uiBaseURL, provider, params.Encode())
	return ctx.Redirect().To(target)
}

// Disconnect revokes a tenant's installation. mode=hard also erases the
// stored credential.
func (c *GatewayController) Disconnect(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")
	provider := ctx.Params("provider")
	hard := ctx.Query("mode") == "hard"

	err := c.installer.Disconnect(ctx.RequestCtx(), tenantID, provider, hard)
	if errors.Is(err, domain.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "No installation for this tenant and provider")
	}
	if err != nil {
		log.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("provider", provider).
			Msg("Disconnect failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Disconnect failed")
	}

	return ctx.JSON(fiber.Map{"disconnected": true, "hard": hard})
}

// HandleSlackWebhook acknowledges deliveries immediately and hands the
// envelope to the pipeline in the background. URL verification handshakes
// are answered inline with the challenge echoed back.
func (c *GatewayController) HandleSlackWebhook(ctx fiber.Ctx) error {
	var envelope domain.WebhookEnvelope

	if err := ctx.Bind().Body(&envelope); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid webhook payload")
	}

	if envelope.Type == domain.EnvelopeTypeURLVerification {
		return ctx.JSON(fiber.Map{"challenge": envelope.Challenge})
	}

	go func(envelope domain.WebhookEnvelope) {
		processCtx, cancel := context.WithTimeout(context.Background(), webhookProcessTimeout)
		defer cancel()

		if err := c.pipeline.Process(processCtx, &envelope); err != nil {
			log.Error().Err(err).
				Str("event_id", envelope.EventID).
				Str("team_id", envelope.TeamID).
				Msg("Webhook processing failed")
		}
	}(envelope)

	return ctx.SendStatus(fiber.StatusOK)
}

// GetStatus reports source connectivity for a tenant. The optional source
// query narrows it to one source type.
func (c *GatewayController) GetStatus(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")
	sourceType := ctx.Query("source")

	report, err := c.aggregator.GetStatus(ctx.RequestCtx(), tenantID, sourceType)
	if errors.Is(err, domain.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Unknown source type")
	}
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Status aggregation failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Status aggregation failed")
	}

	return ctx.JSON(report)
}

// InvalidateStatus drops cached status so the next query probes live.
func (c *GatewayController) InvalidateStatus(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")
	sourceType := ctx.Query("source")

	if err := c.aggregator.Invalidate(ctx.RequestCtx(), tenantID, sourceType); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Status invalidation failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Status invalidation failed")
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// GetChannelScope returns the tenant's channel allow-list. A missing scope
// is returned as an empty allow-list, which admits every channel.
func (c *GatewayController) GetChannelScope(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")

	scope, err := c.scopes.Get(ctx.RequestCtx(), tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		scope = &domain.ChannelScope{TenantID: tenantID}
	} else if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to load channel scope")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load channel scope")
	}

	return ctx.JSON(scope)
}

type putChannelScopeRequest struct {
	ChannelIDs []string `json:"channel_ids"`
}

// PutChannelScope replaces the tenant's channel allow-list.
func (c *GatewayController) PutChannelScope(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")

	var req putChannelScopeRequest
	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	scope := &domain.ChannelScope{
		TenantID:         tenantID,
		ChannelIDs:       req.ChannelIDs,
		LastConfiguredAt: time.Now().UTC(),
	}

	if err := c.scopes.Put(ctx.RequestCtx(), scope); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to store channel scope")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to store channel scope")
	}

	return ctx.JSON(scope)
}

// DeleteChannelScope removes the tenant's allow-list, restoring the
// allow-all default.
func (c *GatewayController) DeleteChannelScope(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")

	if err := c.scopes.Delete(ctx.RequestCtx(), tenantID); err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to delete channel scope")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to delete channel scope")
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}

// ListChannels surfaces the provider's channel listing so an admin can pick
// what to allow-list.
func (c *GatewayController) ListChannels(ctx fiber.Ctx) error {
	tenantID := ctx.Params("tenantID")

	channels, err := c.directory.ListChannels(ctx.RequestCtx(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to list channels")
		return fiber.NewError(fiber.StatusBadGateway, "Failed to list channels")
	}

	return ctx.JSON(fiber.Map{"channels": channels})
}
