package server

import (
	"time"

	"github.com/tidegate/tidegate/internal/controllers"
	"github.com/tidegate/tidegate/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	GatewayController *controllers.GatewayController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "tidegate",
	})

	// Add basic middleware
	router.Use(cors.New())
	router.Use(logger.New())

	// Health check endpoint (no authentication required)
	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "tidegate",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	oauthRoutes := router.Group("/oauth/:provider")
	oauthRoutes.Get("/authorize", deps.GatewayController.Authorize)
	oauthRoutes.Get("/callback", deps.GatewayController.Callback)

	router.Post("/webhooks/slack", deps.GatewayController.HandleSlackWebhook)

	tenants := router.Group("/tenants/:tenantID")
	tenants.Get("/status", deps.GatewayController.GetStatus)
	tenants.Delete("/status", deps.GatewayController.InvalidateStatus)
	tenants.Post("/providers/:provider/disconnect", deps.GatewayController.Disconnect)
	tenants.Get("/channel-scope", deps.GatewayController.GetChannelScope)
	tenants.Put("/channel-scope", deps.GatewayController.PutChannelScope)
	tenants.Delete("/channel-scope", deps.GatewayController.DeleteChannelScope)
	tenants.Get("/channels", deps.GatewayController.ListChannels)

	return router
}
