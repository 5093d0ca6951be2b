// Package config provides configuration management for EntraGuard services
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Service identification
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`

	// External connections
	RedisURL string `mapstructure:"redis_url"`

	// Microsoft Graph adapter
	Graph GraphConfig `mapstructure:"graph"`

	// Geo resolution
	Geo GeoConfig `mapstructure:"geo"`

	// IP reputation lookup
	Reputation ReputationConfig `mapstructure:"reputation"`

	// Scoring engine parameters
	Scoring ScoringConfig `mapstructure:"scoring"`

	// Breach probability model parameters
	Breach BreachConfig `mapstructure:"breach"`
}

// GraphConfig holds Microsoft Graph API connection settings
type GraphConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
	TimeoutSecs  int    `mapstructure:"timeout_seconds"`
}

// GeoConfig holds geo resolution settings
type GeoConfig struct {
	Provider    string `mapstructure:"provider"` // "maxmind" or "ip-api"
	CityDBPath  string `mapstructure:"city_db_path"`
	ASNDBPath   string `mapstructure:"asn_db_path"`
	CacheTTLMin int    `mapstructure:"cache_ttl_minutes"`
	TimeoutSecs int    `mapstructure:"timeout_seconds"`
}

// ReputationConfig holds IP reputation lookup settings
type ReputationConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	APIKey      string `mapstructure:"api_key"`
	CacheTTLMin int    `mapstructure:"cache_ttl_minutes"`
	TimeoutSecs int    `mapstructure:"timeout_seconds"`
}

// LevelThresholds are the minimum scores of each risk level, highest
// first. A band whose threshold is not met falls through to the next.
type LevelThresholds struct {
	Critical int `mapstructure:"critical"`
	High     int `mapstructure:"high"`
	Medium   int `mapstructure:"medium"`
	Low      int `mapstructure:"low"`
}

// ScoringConfig holds the injected parameters of the indicator engine.
// Point values themselves live in the indicator registry; overrides here
// are keyed by indicator id.
type ScoringConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`

	// Working hours as hours of day, start inclusive, end exclusive
	WorkingHoursStart int `mapstructure:"working_hours_start"`
	WorkingHoursEnd   int `mapstructure:"working_hours_end"`

	TrustedASNs []string `mapstructure:"trusted_asns"`

	// Named-location ranges flagged trusted, in CIDR notation
	TrustedCIDRs []string `mapstructure:"trusted_cidrs"`

	// ISO country codes
	ExpectedCountries []string `mapstructure:"expected_countries"`

	// km/h
	MaxTravelSpeed float64 `mapstructure:"max_travel_speed"`

	// Raw score a sign-in must exceed to surface in the report
	DisplayThreshold int `mapstructure:"display_threshold"`

	PointOverrides map[string]int  `mapstructure:"point_overrides"`
	SignInLevels   LevelThresholds `mapstructure:"sign_in_levels"`
	UserLevels     LevelThresholds `mapstructure:"user_levels"`
}

// BreachConfig holds the breach probability model weights and thresholds.
// The weight maps are keyed by indicator id, like point overrides; empty
// maps and zero thresholds fall back to the compiled-in defaults.
type BreachConfig struct {
	CredentialCap    int     `mapstructure:"credential_cap"`
	SessionCap       int     `mapstructure:"session_cap"`
	ConfigurationCap int     `mapstructure:"configuration_cap"`
	TemporalCap      int     `mapstructure:"temporal_cap"`
	CredentialMult   float64 `mapstructure:"credential_multiplier"`
	AdminMult        float64 `mapstructure:"admin_multiplier"`
	MultiCategory    float64 `mapstructure:"multi_category_multiplier"`
	DenseWindowMins  int     `mapstructure:"dense_window_minutes"`
	DenseCount       int     `mapstructure:"dense_count"`

	CredentialWeights    map[string]int `mapstructure:"credential_weights"`
	SessionWeights       map[string]int `mapstructure:"session_weights"`
	ConfigurationWeights map[string]int `mapstructure:"configuration_weights"`
	CAProtectionFactor   int            `mapstructure:"ca_protection_factor"`

	HighLikelihoodMin int `mapstructure:"high_likelihood_min"`
	ProbableMin       int `mapstructure:"probable_min"`
	PossibleMin       int `mapstructure:"possible_min"`
}

// Load reads configuration from file and environment variables
func Load(serviceName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/entraguard")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ENTRAGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.ServiceName = serviceName

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8010)

	v.SetDefault("redis_url", "redis://localhost:6379")

	// Graph adapter defaults
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.timeout_seconds", 30)

	// Geo defaults
	v.SetDefault("geo.provider", "ip-api")
	v.SetDefault("geo.city_db_path", "/var/lib/entraguard/GeoLite2-City.mmdb")
	v.SetDefault("geo.asn_db_path", "/var/lib/entraguard/GeoLite2-ASN.mmdb")
	v.SetDefault("geo.cache_ttl_minutes", 1440)
	v.SetDefault("geo.timeout_seconds", 5)

	// Reputation defaults
	v.SetDefault("reputation.endpoint", "")
	v.SetDefault("reputation.cache_ttl_minutes", 60)
	v.SetDefault("reputation.timeout_seconds", 5)

	// Scoring defaults
	v.SetDefault("scoring.lookback_days", 30)
	v.SetDefault("scoring.working_hours_start", 8)
	v.SetDefault("scoring.working_hours_end", 18)
	v.SetDefault("scoring.trusted_asns", []string{})
	v.SetDefault("scoring.trusted_cidrs", []string{})
	v.SetDefault("scoring.expected_countries", []string{})
	v.SetDefault("scoring.max_travel_speed", 1000.0)
	v.SetDefault("scoring.display_threshold", 0)
	v.SetDefault("scoring.sign_in_levels.critical", 10)
	v.SetDefault("scoring.sign_in_levels.high", 7)
	v.SetDefault("scoring.sign_in_levels.medium", 4)
	v.SetDefault("scoring.sign_in_levels.low", 1)
	v.SetDefault("scoring.user_levels.critical", 10)
	v.SetDefault("scoring.user_levels.high", 7)
	v.SetDefault("scoring.user_levels.medium", 4)

	// Breach model defaults
	v.SetDefault("breach.credential_cap", 40)
	v.SetDefault("breach.session_cap", 35)
	v.SetDefault("breach.configuration_cap", 20)
	v.SetDefault("breach.temporal_cap", 5)
	v.SetDefault("breach.credential_multiplier", 1.3)
	v.SetDefault("breach.admin_multiplier", 1.2)
	v.SetDefault("breach.multi_category_multiplier", 1.15)
	v.SetDefault("breach.dense_window_minutes", 60)
	v.SetDefault("breach.dense_count", 10)
	v.SetDefault("breach.ca_protection_factor", 2)
	v.SetDefault("breach.high_likelihood_min", 71)
	v.SetDefault("breach.probable_min", 41)
	v.SetDefault("breach.possible_min", 21)
}

func bindEnvVars(v *viper.Viper) {
	// Common environment variable mappings
	envMappings := map[string]string{
		"environment":         "APP_ENV",
		"log_level":           "LOG_LEVEL",
		"port":                "PORT",
		"redis_url":           "REDIS_URL",
		"graph.tenant_id":     "GRAPH_TENANT_ID",
		"graph.client_id":     "GRAPH_CLIENT_ID",
		"graph.client_secret": "GRAPH_CLIENT_SECRET",
		"geo.provider":        "GEO_PROVIDER",
		"geo.city_db_path":    "GEO_CITY_DB_PATH",
		"geo.asn_db_path":     "GEO_ASN_DB_PATH",
		"reputation.endpoint": "REPUTATION_ENDPOINT",
		"reputation.api_key":  "REPUTATION_API_KEY",
	}

	for key, env := range envMappings {
		v.BindEnv(key, env)
	}
}

func validate(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.Scoring.LookbackDays < 1 {
		return fmt.Errorf("scoring.lookback_days must be positive")
	}
	if cfg.Scoring.MaxTravelSpeed <= 0 {
		return fmt.Errorf("scoring.max_travel_speed must be positive")
	}
	if cfg.Scoring.WorkingHoursStart < 0 || cfg.Scoring.WorkingHoursStart > 23 ||
		cfg.Scoring.WorkingHoursEnd < 0 || cfg.Scoring.WorkingHoursEnd > 24 {
		return fmt.Errorf("scoring working hours must be within a day")
	}
	for _, m := range []float64{cfg.Breach.CredentialMult, cfg.Breach.AdminMult, cfg.Breach.MultiCategory} {
		if m < 1.0 {
			return fmt.Errorf("breach multipliers must be >= 1.0")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
