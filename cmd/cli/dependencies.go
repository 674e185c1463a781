package cli

import (
	"context"
	"fmt"

	"github.com/tidegate/tidegate/internal/connstate"
	"github.com/tidegate/tidegate/internal/controllers"
	"github.com/tidegate/tidegate/internal/oauth"
	slackprovider "github.com/tidegate/tidegate/internal/providers/slack"
	"github.com/tidegate/tidegate/internal/secrets"
	"github.com/tidegate/tidegate/internal/status"
	"github.com/tidegate/tidegate/internal/stores/mongostore"
	"github.com/tidegate/tidegate/internal/stores/redisstore"
	"github.com/tidegate/tidegate/internal/webhook"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
	googleoauth "golang.org/x/oauth2/google"
)

// GatewayDependencies contains all wired services of the gateway
type GatewayDependencies struct {
	GatewayController *controllers.GatewayController
	ConnectionService *connstate.Service
	MessageStore      *mongostore.MessageStore

	RedisClient *redis.Client
	MongoClient *mongo.Client
}

// BuildGatewayDependencies creates and wires up all gateway services
func BuildGatewayDependencies(ctx context.Context, config *Config) (*GatewayDependencies, error) {
	log.Info().Msg("Building gateway dependencies")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	mongoClient, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	cipher, err := secrets.NewCipher(config.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	installations := redisstore.NewInstallationStore(redisClient)
	scopes := redisstore.NewChannelScopeStore(redisClient)
	connections := redisstore.NewConnectionStateStore(redisClient)
	statusCache := redisstore.NewStatusCache(redisClient)
	messages := mongostore.NewMessageStore(mongoClient.Database(config.MongoDatabase))

	tokens := secrets.NewInstallationTokenSource(installations, cipher)
	slack := slackprovider.NewProvider(tokens)

	connectionService := connstate.NewService(connections)

	probers := []status.Prober{
		status.NewSlackProber(tokens),
	}
	if config.GitHubClientID != "" {
		probers = append(probers, status.NewGitHubProber(tokens))
	}
	if config.GoogleClientID != "" {
		probers = append(probers, status.NewGoogleProber(tokens))
	}

	aggregator := status.NewAggregator(status.AggregatorDependencies{
		Probers:     probers,
		StatusCache: statusCache,
		Connections: connectionService,
	})

	// Installer and pipeline share one routing index: installs and disconnects
	// invalidate the exact entries the webhook path resolves against.
	router := webhook.NewTenantRouter(installations)

	installer := oauth.NewInstaller(oauth.InstallerDependencies{
		Providers:     providerConfigs(config),
		Cipher:        cipher,
		Installations: installations,
		Connections:   connectionService,
		StatusCache:   statusCache,
		ChannelSyncer: slack,
		Routes:        router,
		StateSecret:   []byte(config.StateSigningSecret),
	})

	pipeline := webhook.NewPipeline(webhook.PipelineDependencies{
		Router:        router,
		Filter:        webhook.NewScopeFilter(scopes),
		Normalizer:    webhook.NewNormalizer(slack),
		Messages:      messages,
		ChannelSyncer: slack,
	})

	gatewayController := controllers.NewGatewayController(controllers.GatewayControllerDependencies{
		Installer:  installer,
		Pipeline:   pipeline,
		Aggregator: aggregator,
		Scopes:     scopes,
		Directory:  slack,
		UIBaseURL:  config.BaseURL,
	})

	return &GatewayDependencies{
		GatewayController: gatewayController,
		ConnectionService: connectionService,
		MessageStore:      messages,
		RedisClient:       redisClient,
		MongoClient:       mongoClient,
	}, nil
}

func providerConfigs(config *Config) map[string]oauth.ProviderConfig {
	providers := map[string]oauth.ProviderConfig{
		"slack": {
			Name: "slack",
			OAuth: oauth2.Config{
				ClientID:     config.SlackClientID,
				ClientSecret: config.SlackClientSecret,
				RedirectURL:  config.BaseURL + "/oauth/slack/callback",
				Scopes:       []string{"channels:history", "channels:read", "users:read", "chat:write"},
				Endpoint: oauth2.Endpoint{
					AuthURL:  "https://slack.com/oauth/v2/authorize",
					TokenURL: "https://slack.com/api/oauth.v2.access",
				},
			},
			SourceType: "slack-mcp",
		},
	}

	if config.GitHubClientID != "" {
		providers["github"] = oauth.ProviderConfig{
			Name: "github",
			OAuth: oauth2.Config{
				ClientID:     config.GitHubClientID,
				ClientSecret: config.GitHubClientSecret,
				RedirectURL:  config.BaseURL + "/oauth/github/callback",
				Scopes:       []string{"repo", "read:org"},
				Endpoint:     githuboauth.Endpoint,
			},
			SourceType: "github",
		}
	}

	if config.GoogleClientID != "" {
		providers["google"] = oauth.ProviderConfig{
			Name: "google",
			OAuth: oauth2.Config{
				ClientID:     config.GoogleClientID,
				ClientSecret: config.GoogleClientSecret,
				RedirectURL:  config.BaseURL + "/oauth/google/callback",
				Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
				Endpoint:     googleoauth.Endpoint,
			},
			SourceType: "google",
		}
	}

	return providers
}
