// engine/internal/config/config.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"locascan-engine/internal/domain"
)

type SourceConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// Search is the default criteria every scheduled run uses. The /scrape
// endpoint can override any of it per request.
type Search struct {
	City          string   `yaml:"city"`
	PostalCode    string   `yaml:"postal_code"`
	PriceMin      *float64 `yaml:"price_min"`
	PriceMax      *float64 `yaml:"price_max"`
	SurfaceMin    *float64 `yaml:"surface_min"`
	RoomsMin      *int     `yaml:"rooms_min"`
	RoomsMax      *int     `yaml:"rooms_max"`
	PropertyTypes []string `yaml:"property_types"`
}

func (s Search) Criteria() domain.SearchCriteria {
	return domain.SearchCriteria{
		City:          s.City,
		PostalCode:    s.PostalCode,
		PriceMin:      s.PriceMin,
		PriceMax:      s.PriceMax,
		SurfaceMin:    s.SurfaceMin,
		RoomsMin:      s.RoomsMin,
		RoomsMax:      s.RoomsMax,
		PropertyTypes: s.PropertyTypes,
	}
}

type Config struct {
	App struct {
		Addr     string `yaml:"addr"`
		Env      string `yaml:"env"` // "dev" or "prod"
		LogLevel string `yaml:"log_level"`
		DataDir  string `yaml:"data_dir"`
	} `yaml:"app"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Client struct {
		UserAgent      string  `yaml:"user_agent"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RetryAttempts  int     `yaml:"retry_attempts"`
		RatePerHost    float64 `yaml:"rate_per_host"`
		RateBurst      int     `yaml:"rate_burst"`
		ChromeBin      string  `yaml:"chrome_bin"`
	} `yaml:"client"`

	Scheduler struct {
		Enabled        bool `yaml:"enabled"`
		StaleAfterDays int  `yaml:"stale_after_days"`
	} `yaml:"scheduler"`

	Sources map[string]SourceConfig `yaml:"sources"`

	Search Search `yaml:"search"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
