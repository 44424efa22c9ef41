package domain

import (
	"time"

	"github.com/google/uuid"
)

// PartialListing is what a source adapter manages to pull out of one raw
// fragment. Every field is optional: unstable markup means any of them can be
// missing, and the normalizer decides what that means.
type PartialListing struct {
	SourceID    string
	SourceURL   string
	Title       string
	Description *string

	Price   *float64 // monthly rent, EUR
	Surface *float64 // m²

	Rooms    *int
	Bedrooms *int
	Baths    *int

	City       *string
	PostalCode *string
	Address    *string
	Latitude   *float64
	Longitude  *float64

	PropertyType *string
	EnergyClass  *string

	Furnished       *bool
	ChargesIncluded *bool

	Images []string
}

// CanonicalListing is the unified cross-source record shape. (Source, SourceID)
// is the natural key; a listing with an empty SourceID is never persisted.
type CanonicalListing struct {
	Source    string `json:"source"`
	SourceID  string `json:"source_id"`
	SourceURL string `json:"source_url"`

	Title       string  `json:"title"`
	Description *string `json:"description"`

	Price   *float64 `json:"price"`
	Surface *float64 `json:"surface"`

	Rooms    *int `json:"rooms"`
	Bedrooms *int `json:"bedrooms"`
	Baths    *int `json:"baths"`

	City       *string  `json:"city"`
	PostalCode *string  `json:"postal_code"`
	Address    *string  `json:"address"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`

	PropertyType *string `json:"property_type"`
	EnergyClass  *string `json:"energy_class"`

	Furnished       bool `json:"furnished"`
	ChargesIncluded bool `json:"charges_included"`

	Images []string `json:"images"`

	IsActive bool `json:"is_active"`
}

// Listing is the persisted entity: a CanonicalListing plus the surrogate id
// and lifecycle timestamps owned by the repository.
type Listing struct {
	ID uuid.UUID `json:"id"`
	CanonicalListing
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}
