package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all gateway configuration
type Config struct {
	// Basic server settings
	HTTPAddress string
	BaseURL     string

	// Backing stores
	RedisAddr     string
	RedisPassword string
	MongoURI      string
	MongoDatabase string

	// Cryptographic material
	CredentialKey      string
	StateSigningSecret string

	// OAuth providers
	SlackClientID      string
	SlackClientSecret  string
	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Configure environment variables - do this BEFORE reading config
	v.AutomaticEnv()
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":        "HTTP_ADDRESS",
		"BaseURL":            "BASE_URL",
		"RedisAddr":          "REDIS_ADDR",
		"RedisPassword":      "REDIS_PASSWORD",
		"MongoURI":           "MONGO_URI",
		"MongoDatabase":      "MONGO_DATABASE",
		"CredentialKey":      "CREDENTIAL_KEY",
		"StateSigningSecret": "STATE_SIGNING_SECRET",
		"SlackClientID":      "SLACK_CLIENT_ID",
		"SlackClientSecret":  "SLACK_CLIENT_SECRET",
		"GitHubClientID":     "GITHUB_CLIENT_ID",
		"GitHubClientSecret": "GITHUB_CLIENT_SECRET",
		"GoogleClientID":     "GOOGLE_CLIENT_ID",
		"GoogleClientSecret": "GOOGLE_CLIENT_SECRET",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("tidegate_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.tidegate")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("BaseURL", "http://localhost:8080")
	v.SetDefault("RedisAddr", "localhost:6379")
	v.SetDefault("MongoURI", "mongodb://localhost:27017")
	v.SetDefault("MongoDatabase", "tidegate")
}

// validateConfig validates the required configuration fields
func validateConfig(config *Config) error {
	var missingVars []string

	if config.CredentialKey == "" {
		missingVars = append(missingVars, "CREDENTIAL_KEY")
	}

	if config.StateSigningSecret == "" {
		missingVars = append(missingVars, "STATE_SIGNING_SECRET")
	}

	if config.SlackClientID == "" {
		missingVars = append(missingVars, "SLACK_CLIENT_ID")
	}

	if config.SlackClientSecret == "" {
		missingVars = append(missingVars, "SLACK_CLIENT_SECRET")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s\n\nGenerate an encryption key with: tidegate generate-key",
			strings.Join(missingVars, ", "))
	}

	return nil
}
