// Package config provides configuration management for the fieldsat service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/rkm/fieldsat/internal/models"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Orchestrator OrchestratorConfig `envPrefix:"ORCHESTRATOR_"`
	Search       SearchConfig       `envPrefix:"SEARCH_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	Profiles     ProfilesConfig     `envPrefix:"PROFILES_"`
	Planet       PlanetConfig       `envPrefix:"PLANET_"`
	Copernicus   CopernicusConfig   `envPrefix:"COPERNICUS_"`
	SentinelHub  SentinelHubConfig  `envPrefix:"SENTINELHUB_"`
	EarthEngine  EarthEngineConfig  `envPrefix:"EARTHENGINE_"`
	Store        StoreConfig        `envPrefix:"STORE_"`
	Events       EventsConfig       `envPrefix:"EVENTS_"`
	Archive      ArchiveConfig      `envPrefix:"ARCHIVE_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATELIMIT_"`
	Logging      LoggingConfig      `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"180s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// OrchestratorConfig controls source selection and cache freshness.
type OrchestratorConfig struct {
	// Priority lists sources from most to least preferred.
	Priority       []string      `env:"PRIORITY" envSeparator:"," envDefault:"planet,sentinel_hub,copernicus,earth_engine"`
	StaleAfter     time.Duration `env:"STALE_AFTER" envDefault:"168h"`
	AdapterTimeout time.Duration `env:"ADAPTER_TIMEOUT" envDefault:"30s"`
}

// SearchConfig is shared by every provider catalogue search.
type SearchConfig struct {
	WindowDays    int     `env:"WINDOW_DAYS" envDefault:"10"`
	MaxCloudCover float64 `env:"MAX_CLOUD_COVER" envDefault:"30"`
	Limit         int     `env:"LIMIT" envDefault:"20"`
}

// AuthConfig controls OAuth token caching and the token retry loop.
type AuthConfig struct {
	ExpiryMargin time.Duration `env:"EXPIRY_MARGIN" envDefault:"60s"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay   time.Duration `env:"RETRY_DELAY" envDefault:"500ms"`
}

// ProfilesConfig points at optional YAML provider profiles.
type ProfilesConfig struct {
	Dir string `env:"DIR" envDefault:""`
}

// PlanetConfig contains Planet Data API and PlanetScope statistics configuration.
type PlanetConfig struct {
	APIKey            string        `env:"API_KEY" envDefault:""`
	DataURL           string        `env:"DATA_URL" envDefault:"https://api.planet.com/data/v1"`
	ItemType          string        `env:"ITEM_TYPE" envDefault:"PSScene"`
	ClientID          string        `env:"CLIENT_ID" envDefault:""`
	ClientSecret      string        `env:"CLIENT_SECRET" envDefault:""`
	TokenURL          string        `env:"TOKEN_URL" envDefault:"https://services.sentinel-hub.com/auth/realms/main/protocol/openid-connect/token"`
	StatisticsURL     string        `env:"STATISTICS_URL" envDefault:"https://services.sentinel-hub.com/api/v1/statistics"`
	CollectionID      string        `env:"COLLECTION_ID" envDefault:""`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
}

// CopernicusConfig contains Copernicus Data Space Ecosystem configuration.
type CopernicusConfig struct {
	ClientID          string        `env:"CLIENT_ID" envDefault:""`
	ClientSecret      string        `env:"CLIENT_SECRET" envDefault:""`
	TokenURL          string        `env:"TOKEN_URL" envDefault:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	CatalogURL        string        `env:"CATALOG_URL" envDefault:"https://catalogue.dataspace.copernicus.eu/stac"`
	StatisticsURL     string        `env:"STATISTICS_URL" envDefault:"https://sh.dataspace.copernicus.eu/api/v1/statistics"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
}

// SentinelHubConfig contains Sentinel Hub configuration.
type SentinelHubConfig struct {
	ClientID          string        `env:"CLIENT_ID" envDefault:""`
	ClientSecret      string        `env:"CLIENT_SECRET" envDefault:""`
	TokenURL          string        `env:"TOKEN_URL" envDefault:"https://services.sentinel-hub.com/auth/realms/main/protocol/openid-connect/token"`
	CatalogURL        string        `env:"CATALOG_URL" envDefault:"https://services.sentinel-hub.com/api/v1/catalog/1.0.0"`
	StatisticsURL     string        `env:"STATISTICS_URL" envDefault:"https://services.sentinel-hub.com/api/v1/statistics"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"5"`
}

// EarthEngineConfig contains Google Earth Engine REST API configuration.
type EarthEngineConfig struct {
	CredentialsFile   string        `env:"CREDENTIALS_FILE" envDefault:""`
	Project           string        `env:"PROJECT" envDefault:""`
	BaseURL           string        `env:"BASE_URL" envDefault:"https://earthengine.googleapis.com"`
	Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"2"`
}

// StoreConfig selects and configures the observation store.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres, mongo or valkey.
	Driver          string `env:"DRIVER" envDefault:"memory"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"fieldsat.db"`
	PostgresDSN     string `env:"POSTGRES_DSN" envDefault:""`
	MongoURI        string `env:"MONGO_URI" envDefault:""`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"fieldsat"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"observations"`
	ValkeyAddr      string `env:"VALKEY_ADDR" envDefault:"localhost:6379"`
	ValkeyPrefix    string `env:"VALKEY_PREFIX" envDefault:"fieldsat"`
}

// EventsConfig configures the observation event publisher.
type EventsConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"fieldsat.observations"`
}

// ArchiveConfig configures the raw provider payload archive.
type ArchiveConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	Endpoint  string `env:"ENDPOINT" envDefault:""`
	AccessKey string `env:"ACCESS_KEY" envDefault:""`
	SecretKey string `env:"SECRET_KEY" envDefault:""`
	Bucket    string `env:"BUCKET" envDefault:"fieldsat-archive"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
}

// RateLimitConfig limits API requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"20"`
	Burst             int     `env:"BURST" envDefault:"40"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables, after loading any
// .env files given (missing files are ignored).
// It returns an error if required fields are missing or invalid.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set
		_ = godotenv.Load(f)
	}

	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate orchestrator config
	if _, err := c.Orchestrator.Sources(); err != nil {
		return err
	}

	if c.Orchestrator.StaleAfter <= 0 {
		return fmt.Errorf("orchestrator stale-after must be positive, got %s", c.Orchestrator.StaleAfter)
	}

	if c.Orchestrator.AdapterTimeout <= 0 {
		return fmt.Errorf("orchestrator adapter timeout must be positive, got %s", c.Orchestrator.AdapterTimeout)
	}

	// Validate search config
	if c.Search.WindowDays < 1 {
		return fmt.Errorf("search window must be at least 1 day, got %d", c.Search.WindowDays)
	}

	if c.Search.MaxCloudCover < 0 || c.Search.MaxCloudCover > 100 {
		return fmt.Errorf("max cloud cover must be between 0 and 100, got %g", c.Search.MaxCloudCover)
	}

	if c.Search.Limit < 1 {
		return fmt.Errorf("search limit must be at least 1, got %d", c.Search.Limit)
	}

	// Validate auth config
	if c.Auth.ExpiryMargin < 0 {
		return fmt.Errorf("token expiry margin must not be negative, got %s", c.Auth.ExpiryMargin)
	}

	if c.Auth.MaxAttempts < 1 {
		return fmt.Errorf("token max attempts must be at least 1, got %d", c.Auth.MaxAttempts)
	}

	// Validate provider timeouts
	for name, timeout := range map[string]time.Duration{
		"planet":       c.Planet.Timeout,
		"copernicus":   c.Copernicus.Timeout,
		"sentinel hub": c.SentinelHub.Timeout,
		"earth engine": c.EarthEngine.Timeout,
	} {
		if timeout <= 0 {
			return fmt.Errorf("%s timeout must be positive, got %s", name, timeout)
		}
	}

	// Validate store config
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite store")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres DSN is required for the postgres store")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for the mongo store")
		}
	case "valkey":
		if c.Store.ValkeyAddr == "" {
			return fmt.Errorf("valkey address is required for the valkey store")
		}
	default:
		return fmt.Errorf("invalid store driver %q, must be one of: memory, sqlite, postgres, mongo, valkey", c.Store.Driver)
	}

	// Validate events config
	if c.Events.Enabled {
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("at least one kafka broker is required when events are enabled")
		}
		if c.Events.Topic == "" {
			return fmt.Errorf("events topic is required when events are enabled")
		}
	}

	// Validate archive config
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive endpoint is required when the archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive bucket is required when the archive is enabled")
		}
	}

	// Validate rate limit config
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit must be positive, got %g", c.RateLimit.RequestsPerSecond)
	}

	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimit.Burst)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Sources parses the priority list. Sources must be known and unique.
func (o *OrchestratorConfig) Sources() ([]models.Source, error) {
	if len(o.Priority) == 0 {
		return nil, fmt.Errorf("orchestrator priority must list at least one source")
	}

	seen := make(map[models.Source]bool, len(o.Priority))
	sources := make([]models.Source, 0, len(o.Priority))
	for _, name := range o.Priority {
		src, err := models.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("invalid orchestrator priority: %w", err)
		}
		if seen[src] {
			return nil, fmt.Errorf("invalid orchestrator priority: %q listed twice", name)
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return sources, nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
