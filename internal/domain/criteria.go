package domain

import (
	"fmt"
	"strings"
	"time"
)

// SearchCriteria describes one scrape invocation. It is treated as immutable
// once handed to an adapter. Optional numeric bounds are pointers so that an
// explicit zero is distinguishable from "not set" and can be rejected.
type SearchCriteria struct {
	City       string `yaml:"city" json:"city"`
	PostalCode string `yaml:"postal_code" json:"postal_code,omitempty"`

	PriceMin   *float64 `yaml:"price_min" json:"price_min,omitempty"`
	PriceMax   *float64 `yaml:"price_max" json:"price_max,omitempty"`
	SurfaceMin *float64 `yaml:"surface_min" json:"surface_min,omitempty"`

	RoomsMin *int `yaml:"rooms_min" json:"rooms_min,omitempty"`
	RoomsMax *int `yaml:"rooms_max" json:"rooms_max,omitempty"`

	// Availability window, YYYY-MM-DD. Only some platforms understand it.
	AvailableFrom string `yaml:"available_from" json:"available_from,omitempty"`
	AvailableTo   string `yaml:"available_to" json:"available_to,omitempty"`

	PropertyTypes []string `yaml:"property_types" json:"property_types,omitempty"`

	Page     int `yaml:"page" json:"page,omitempty"`
	PageSize int `yaml:"page_size" json:"page_size,omitempty"`
}

// ValidationError reports malformed caller-supplied search criteria. It is the
// only adapter-side failure that surfaces to the API caller as a 4xx.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid criteria: %s %s", e.Field, e.Reason)
}

const dateLayout = "2006-01-02"

// Validate rejects criteria before any adapter is dispatched.
func (c SearchCriteria) Validate() error {
	if strings.TrimSpace(c.City) == "" {
		return &ValidationError{Field: "city", Reason: "is required"}
	}
	if c.PriceMin != nil && *c.PriceMin <= 0 {
		return &ValidationError{Field: "price_min", Reason: "must be positive"}
	}
	if c.PriceMax != nil && *c.PriceMax <= 0 {
		return &ValidationError{Field: "price_max", Reason: "must be positive"}
	}
	if c.PriceMin != nil && c.PriceMax != nil && *c.PriceMin > *c.PriceMax {
		return &ValidationError{Field: "price_min", Reason: "exceeds price_max"}
	}
	if c.SurfaceMin != nil && *c.SurfaceMin <= 0 {
		return &ValidationError{Field: "surface_min", Reason: "must be positive"}
	}
	if c.RoomsMin != nil && *c.RoomsMin <= 0 {
		return &ValidationError{Field: "rooms_min", Reason: "must be positive"}
	}
	if c.RoomsMax != nil && *c.RoomsMax <= 0 {
		return &ValidationError{Field: "rooms_max", Reason: "must be positive"}
	}
	if c.RoomsMin != nil && c.RoomsMax != nil && *c.RoomsMin > *c.RoomsMax {
		return &ValidationError{Field: "rooms_min", Reason: "exceeds rooms_max"}
	}
	if c.Page < 0 || c.PageSize < 0 {
		return &ValidationError{Field: "pagination", Reason: "must be positive"}
	}
	for field, v := range map[string]string{"available_from": c.AvailableFrom, "available_to": c.AvailableTo} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return &ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
		}
	}
	return nil
}
