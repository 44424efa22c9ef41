package httpapi

import (
	"context"
	"log/slog"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/events"
	"locascan-engine/internal/scheduler"
	"locascan-engine/internal/scrape"
	"locascan-engine/internal/store"
)

// ScrapeRunner is what the handlers need from the scraper manager.
// *scrape.Manager satisfies it; tests inject fakes.
type ScrapeRunner interface {
	Sources() []string
	Scrape(ctx context.Context, name string, criteria domain.SearchCriteria) ([]domain.CanonicalListing, error)
	Run(ctx context.Context, name string, criteria domain.SearchCriteria) (scrape.RunResult, error)
	RunAll(ctx context.Context, criteria domain.SearchCriteria) map[string]scrape.RunResult
}

// ListingReader is the repository slice the query endpoints use.
type ListingReader interface {
	SearchListings(ctx context.Context, f store.ListingFilter) ([]domain.Listing, error)
	CountListings(ctx context.Context, source string) (total, active int64, err error)
}

type Deps struct {
	Runner    ScrapeRunner
	Listings  ListingReader
	Scheduler *scheduler.Scheduler
	Hub       *events.Hub
	Log       *slog.Logger

	// ConfigPath is the user config file served by /config.
	ConfigPath string

	// "dev" or "prod"; prod redacts 5xx details.
	Env string
}
