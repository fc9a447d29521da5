package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/samirrijal/tripgaps/internal/pkg/geospatial"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig               `mapstructure:"server"`
	Database    DatabaseConfig             `mapstructure:"database"`
	NATS        NATSConfig                 `mapstructure:"nats"`
	Valkey      ValkeyConfig               `mapstructure:"valkey"`
	Telemetry   TelemetryConfig            `mapstructure:"telemetry"`
	Temporal    TemporalConfig             `mapstructure:"temporal"`
	Log         LogConfig                  `mapstructure:"log"`
	Providers   ProvidersConfig            `mapstructure:"providers"`
	Resolver    ResolverConfig             `mapstructure:"resolver"`
	Suggestions SuggestionsConfig          `mapstructure:"suggestions"`
	Transport   geospatial.TransportConfig `mapstructure:"transport"`
	Catalog     CatalogConfig              `mapstructure:"catalog"`
	Itinerary   ItineraryConfig            `mapstructure:"itinerary"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProvidersConfig configures the external geocoding and nearby-search APIs.
// A provider without credentials is left out of the resolution chain.
type ProvidersConfig struct {
	Country        string           `mapstructure:"country"`
	UserAgent      string           `mapstructure:"user_agent"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds"`
	MaxRetries     int              `mapstructure:"max_retries"`
	Google         GoogleConfig     `mapstructure:"google"`
	LocationIQ     LocationIQConfig `mapstructure:"locationiq"`
	Nominatim      NominatimConfig  `mapstructure:"nominatim"`
	Breaker        BreakerConfig    `mapstructure:"breaker"`
}

type GoogleConfig struct {
	APIKey          string `mapstructure:"api_key"`
	TextSearchURL   string `mapstructure:"text_search_url"`
	NearbySearchURL string `mapstructure:"nearby_search_url"`
	Language        string `mapstructure:"language"`
}

type LocationIQConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type NominatimConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

type BreakerConfig struct {
	MaxRequests     uint32 `mapstructure:"max_requests"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

type ResolverConfig struct {
	BatchDelayMS    int `mapstructure:"batch_delay_ms"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds"`
}

// BatchDelay is the pause between provider lookups in batch work.
func (r ResolverConfig) BatchDelay() time.Duration {
	return time.Duration(r.BatchDelayMS) * time.Millisecond
}

// SuggestionsConfig holds the gap, neighborhood and alert thresholds.
type SuggestionsConfig struct {
	DefaultCity             string   `mapstructure:"default_city"`
	MinGapMinutes           int      `mapstructure:"min_gap_minutes"`
	MaxGapMinutes           int      `mapstructure:"max_gap_minutes"`
	GapRadiusKm             float64  `mapstructure:"gap_radius_km"`
	NearbyRadiusKm          float64  `mapstructure:"nearby_radius_km"`
	BufferMinutes           int      `mapstructure:"buffer_minutes"`
	MaxPerGap               int      `mapstructure:"max_per_gap"`
	MaxNearby               int      `mapstructure:"max_nearby"`
	PoolFactor              int      `mapstructure:"pool_factor"`
	DefaultActivityMinutes  int      `mapstructure:"default_activity_minutes"`
	DefaultCandidateMinutes int      `mapstructure:"default_candidate_minutes"`
	DefaultRating           float64  `mapstructure:"default_rating"`
	HomeBaseRadiusKm        float64  `mapstructure:"home_base_radius_km"`
	HomeBaseBonus           float64  `mapstructure:"home_base_bonus"`
	HomeBaseCloseKm         float64  `mapstructure:"home_base_close_km"`
	HomeBaseCloseBonus      float64  `mapstructure:"home_base_close_bonus"`
	ShortGapMinutes         int      `mapstructure:"short_gap_minutes"`
	ShortGapTypes           []string `mapstructure:"short_gap_types"`
	LongGapTypes            []string `mapstructure:"long_gap_types"`
	NearbyTypes             []string `mapstructure:"nearby_types"`
	OverloadThreshold       int      `mapstructure:"overload_threshold"`
	FatigueThreshold        int      `mapstructure:"fatigue_threshold"`
	TransportWarningMinutes int      `mapstructure:"transport_warning_minutes"`
}

type CatalogConfig struct {
	Source string `mapstructure:"source"` // file or postgres
	Path   string `mapstructure:"path"`
}

// ItineraryConfig selects the itinerary the API reads and edits.
type ItineraryConfig struct {
	ActiveID string `mapstructure:"active_id"`
}

// Load reads configuration from .env, an optional config file and environment variables.
func Load(service string) (*Config, error) {
	_ = godotenv.Load() // OK if missing

	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tripgaps")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tripgaps")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.namespace", "tripgaps")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "itinerary-repair")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("providers.country", "Japan")
	v.SetDefault("providers.user_agent", "tripgaps/1.0 (itinerary planner)")
	v.SetDefault("providers.timeout_seconds", 8)
	v.SetDefault("providers.max_retries", 2)
	v.SetDefault("providers.google.api_key", "")
	v.SetDefault("providers.google.text_search_url", "https://places.googleapis.com/v1/places:searchText")
	v.SetDefault("providers.google.nearby_search_url", "https://places.googleapis.com/v1/places:searchNearby")
	v.SetDefault("providers.google.language", "en")
	v.SetDefault("providers.locationiq.api_key", "")
	v.SetDefault("providers.locationiq.base_url", "https://us1.locationiq.com/v1/search")
	v.SetDefault("providers.nominatim.enabled", true)
	v.SetDefault("providers.nominatim.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("providers.breaker.max_requests", 5)
	v.SetDefault("providers.breaker.interval_seconds", 60)
	v.SetDefault("providers.breaker.timeout_seconds", 120)

	v.SetDefault("resolver.batch_delay_ms", 200)
	v.SetDefault("resolver.cache_ttl_seconds", 7*24*3600)

	v.SetDefault("suggestions.default_city", "Tokyo")
	v.SetDefault("suggestions.min_gap_minutes", 45)
	v.SetDefault("suggestions.max_gap_minutes", 300)
	v.SetDefault("suggestions.gap_radius_km", 2.0)
	v.SetDefault("suggestions.nearby_radius_km", 1.5)
	v.SetDefault("suggestions.buffer_minutes", 15)
	v.SetDefault("suggestions.max_per_gap", 10)
	v.SetDefault("suggestions.max_nearby", 8)
	v.SetDefault("suggestions.pool_factor", 3)
	v.SetDefault("suggestions.default_activity_minutes", 90)
	v.SetDefault("suggestions.default_candidate_minutes", 60)
	v.SetDefault("suggestions.default_rating", 4.0)
	v.SetDefault("suggestions.home_base_radius_km", 1.0)
	v.SetDefault("suggestions.home_base_bonus", 20)
	v.SetDefault("suggestions.home_base_close_km", 0.5)
	v.SetDefault("suggestions.home_base_close_bonus", 10)
	v.SetDefault("suggestions.short_gap_minutes", 90)
	v.SetDefault("suggestions.short_gap_types", []string{"coffee_shop", "bakery", "convenience_store"})
	v.SetDefault("suggestions.long_gap_types", []string{"tourist_attraction", "museum", "park", "shopping_mall", "japanese_restaurant", "ramen_restaurant"})
	v.SetDefault("suggestions.nearby_types", []string{"tourist_attraction", "museum", "park", "cafe", "restaurant"})
	v.SetDefault("suggestions.overload_threshold", 7)
	v.SetDefault("suggestions.fatigue_threshold", 3)
	v.SetDefault("suggestions.transport_warning_minutes", 120)

	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.path", "data/catalog.json")
	v.SetDefault("itinerary.active_id", "default")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TRIPGAPS_PROVIDERS_GOOGLE_API_KEY → providers.google.api_key
	v.SetEnvPrefix("TRIPGAPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Transport.Tiers) == 0 {
		cfg.Transport = geospatial.DefaultTransportConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Providers.TimeoutSeconds <= 0 {
		errs = append(errs, "providers.timeout_seconds must be positive")
	}
	if c.Providers.MaxRetries < 0 {
		errs = append(errs, "providers.max_retries must not be negative")
	}
	if c.Providers.Nominatim.Enabled && c.Providers.UserAgent == "" {
		errs = append(errs, "providers.user_agent is required when nominatim is enabled")
	}
	if c.Resolver.BatchDelayMS <= 0 {
		errs = append(errs, fmt.Sprintf("resolver.batch_delay_ms must be positive, got %d", c.Resolver.BatchDelayMS))
	}

	s := c.Suggestions
	if s.MinGapMinutes <= 0 || s.MaxGapMinutes < s.MinGapMinutes {
		errs = append(errs, fmt.Sprintf("suggestions gap window invalid: min %d, max %d", s.MinGapMinutes, s.MaxGapMinutes))
	}
	if s.GapRadiusKm <= 0 || s.NearbyRadiusKm <= 0 {
		errs = append(errs, "suggestions radii must be positive")
	}
	if s.MaxPerGap <= 0 || s.MaxNearby <= 0 || s.PoolFactor <= 0 {
		errs = append(errs, "suggestions.max_per_gap, max_nearby and pool_factor must be positive")
	}
	if s.OverloadThreshold <= 0 || s.FatigueThreshold <= 0 || s.TransportWarningMinutes <= 0 {
		errs = append(errs, "suggestions alert thresholds must be positive")
	}
	if err := c.Transport.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Catalog.Source != "file" && c.Catalog.Source != "postgres" {
		errs = append(errs, fmt.Sprintf("catalog.source must be file or postgres, got %q", c.Catalog.Source))
	}
	if c.Catalog.Source == "file" && c.Catalog.Path == "" {
		errs = append(errs, "catalog.path is required for the file catalog")
	}
	if c.Itinerary.ActiveID == "" {
		errs = append(errs, "itinerary.active_id is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
