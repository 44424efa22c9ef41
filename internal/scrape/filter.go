package scrape

import (
	"strings"

	"locascan-engine/internal/domain"
)

// KeepListing re-checks a normalized listing against the criteria. Platforms
// apply server-side filters loosely (or ignore a param entirely), so the
// bounds are enforced again here. A listing missing the field a bound refers
// to is kept; only a known-out-of-range value drops it.
func KeepListing(c domain.CanonicalListing, criteria domain.SearchCriteria) (keep bool, reason string) {
	if criteria.PriceMin != nil && c.Price != nil && *c.Price < *criteria.PriceMin {
		return false, "price_below_min"
	}
	if criteria.PriceMax != nil && c.Price != nil && *c.Price > *criteria.PriceMax {
		return false, "price_above_max"
	}
	if criteria.SurfaceMin != nil && c.Surface != nil && *c.Surface < *criteria.SurfaceMin {
		return false, "surface_below_min"
	}
	if criteria.RoomsMin != nil && c.Rooms != nil && *c.Rooms < *criteria.RoomsMin {
		return false, "rooms_below_min"
	}
	if criteria.RoomsMax != nil && c.Rooms != nil && *c.Rooms > *criteria.RoomsMax {
		return false, "rooms_above_max"
	}
	if len(criteria.PropertyTypes) > 0 && c.PropertyType != nil {
		if !containsFold(criteria.PropertyTypes, *c.PropertyType) {
			return false, "property_type"
		}
	}
	return true, ""
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(needle)) {
			return true
		}
	}
	return false
}
