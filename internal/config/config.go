package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "DREAMSCAPE"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "dreamscape.db"
	defaultLogLevel      = "info"
	defaultGoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOpenAIAPIURL  = "https://api.openai.com/v1/images/generations"
	defaultAssetFolder   = "dreamscape"
	defaultTokenTTLMin   = 60
	defaultFeedPageLimit = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	DatabasePath        string
	LogLevel            string
	GoogleClientID      string
	GoogleJWKSURL       string
	SigningSecret       string
	TokenTTL            time.Duration
	OpenAIAPIKey        string
	OpenAIAPIURL        string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	FeedPageLimit       int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("openai.api_url", defaultOpenAIAPIURL)
	configViper.SetDefault("cloudinary.folder", defaultAssetFolder)
	configViper.SetDefault("feed.page_limit", defaultFeedPageLimit)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		GoogleClientID:      configViper.GetString("google.client_id"),
		GoogleJWKSURL:       configViper.GetString("google.jwks_url"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		TokenTTL:            time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		OpenAIAPIKey:        configViper.GetString("openai.api_key"),
		OpenAIAPIURL:        configViper.GetString("openai.api_url"),
		CloudinaryCloudName: configViper.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    configViper.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: configViper.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    configViper.GetString("cloudinary.folder"),
		FeedPageLimit:       configViper.GetInt("feed.page_limit"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.FeedPageLimit <= 0 {
		return fmt.Errorf("feed.page_limit must be positive")
	}
	return nil
}
