package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBDir    string     `env:"DB_DIR" envDefault:"data"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`
	Locale   string     `env:"LOCALE" envDefault:"en-US"`

	// Provider selects the directions backend: "mapbox" or "google".
	Provider      string `env:"DIRECTIONS_PROVIDER" envDefault:"mapbox"`
	MapboxToken   string `env:"MAPBOX_TOKEN"`
	MapboxBaseURL string `env:"MAPBOX_BASE_URL" envDefault:"https://api.mapbox.com"`
	MapboxProfile string `env:"MAPBOX_PROFILE" envDefault:"driving"`
	GoogleAPIKey  string `env:"GOOGLE_API_KEY"`

	LookupTimeout   time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"10s"`
	GeocodeCacheTTL time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"168h"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"30m"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) validate() error {
	switch c.Provider {
	case "mapbox":
		if c.MapboxToken == "" {
			return fmt.Errorf("MAPBOX_TOKEN is required for provider %q", c.Provider)
		}
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown DIRECTIONS_PROVIDER %q", c.Provider)
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("LOOKUP_TIMEOUT must be positive, got %s", c.LookupTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("invalid LOCALE %q: %w", c.Locale, err)
	}
	return nil
}
