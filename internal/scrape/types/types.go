package types

import (
	"context"
	"encoding/json"
	"time"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/util"
)

// Fragment is one raw per-listing chunk of source material. Exactly one of the
// two fields is set; its internal structure is only understood by the adapter
// that produced it.
type Fragment struct {
	HTML string
	JSON json.RawMessage
}

// Source is the capability set every platform adapter implements.
//
// FetchListings returns one fragment per listing found for the criteria. Zero
// matches is an empty slice and a nil error; a network/HTTP failure after
// retries is a *FetchError.
//
// ParseFragment maps one fragment to a partial record. (nil, nil) means the
// fragment carries no listing and is silently skipped; a non-nil error means
// the markup no longer matches expectations — the caller logs and moves on,
// never aborting the batch.
type Source interface {
	Name() string
	FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]Fragment, error)
	ParseFragment(f Fragment) (*domain.PartialListing, error)
}

// ClientConfig is the explicit per-adapter request configuration. There is no
// process-wide HTTP state: every adapter instance gets its own copy.
type ClientConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	Limiter        *util.HostLimiter
}

const DefaultAcceptLanguage = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"

// WithDefaults fills the zero values callers usually leave alone.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = DefaultAcceptLanguage
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	return c
}
