package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clinic/dayview/internal/domain/scheduling"
)

const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	LogLevel          string   `mapstructure:"LOG_LEVEL"`
	DataSource        string   `mapstructure:"DATA_SOURCE"`
	DatasetFile       string   `mapstructure:"DATASET_FILE"`
	DatabaseURL       string   `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32    `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir     string   `mapstructure:"MIGRATIONS_DIR"`
	RedisURL          string   `mapstructure:"REDIS_URL"`
	CacheTTLSeconds   int      `mapstructure:"CACHE_TTL_SECONDS"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
	DayStartHour      int      `mapstructure:"DAY_START_HOUR"`
	DayEndHour        int      `mapstructure:"DAY_END_HOUR"`
	SlotMinutes       int      `mapstructure:"SLOT_MINUTES"`
	TimeZone          string   `mapstructure:"TIMEZONE"`
	OTelEnabled       bool     `mapstructure:"OTEL_ENABLED"`
	OTelEndpoint      string   `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSamplingRatio float64  `mapstructure:"OTEL_SAMPLING_RATIO"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATA_SOURCE", "DATASET_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "CACHE_TTL_SECONDS", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"DAY_START_HOUR", "DAY_END_HOUR", "SLOT_MINUTES", "TIMEZONE",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_SOURCE", SourceMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("CACHE_TTL_SECONDS", 60)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("DAY_START_HOUR", 8)
	v.SetDefault("DAY_END_HOUR", 18)
	v.SetDefault("SLOT_MINUTES", 30)
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("OTEL_SAMPLING_RATIO", 1.0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.DataSource = strings.ToLower(strings.TrimSpace(cfg.DataSource))

	if cfg.DataSource == SourcePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=postgres")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SlotConfig returns the configured business-day geometry.
func (c *Config) SlotConfig() scheduling.SlotConfig {
	return scheduling.SlotConfig{StartHour: c.DayStartHour, EndHour: c.DayEndHour, SlotMinutes: c.SlotMinutes}
}

// Location resolves TIMEZONE. "Local" and the empty string mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// CacheTTL returns the response cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Validate checks that the configuration is consistent before the server
// or a CLI command starts using it.
func (c *Config) Validate() error {
	switch c.DataSource {
	case SourceMemory:
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_SOURCE=postgres")
		}
	default:
		return fmt.Errorf("DATA_SOURCE must be %q or %q, got %q", SourceMemory, SourcePostgres, c.DataSource)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if err := c.SlotConfig().Validate(); err != nil {
		return fmt.Errorf("DAY_START_HOUR/DAY_END_HOUR/SLOT_MINUTES: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative, got %d", c.CacheTTLSeconds)
	}
	if c.OTelSamplingRatio < 0 || c.OTelSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be in [0, 1], got %g", c.OTelSamplingRatio)
	}
	return nil
}
