package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidegate/tidegate/internal/server"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway",
		Long:  `Start the gateway service: the OAuth install endpoints, the webhook ingestion endpoint, and the status API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}

	return cmd
}

func runGateway() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("Starting gateway service")

	config, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	deps, err := BuildGatewayDependencies(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build gateway dependencies")
	}

	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()

		if err := deps.MongoClient.Disconnect(disconnectCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect from mongodb")
		}
		if err := deps.RedisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}()

	indexCtx, indexCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := deps.MessageStore.EnsureIndexes(indexCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure message indexes")
	}
	indexCancel()

	deps.ConnectionService.StartSweeper()
	defer deps.ConnectionService.StopSweeper()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		GatewayController: deps.GatewayController,
	})

	log.Info().Str("address", config.HTTPAddress).Msg("Gateway listening")

	if err := app.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Gateway service stopped")
	return nil
}
