// Package normalize maps adapter-produced partial records onto the canonical
// cross-source listing schema. It fills every field, treats absence as null
// and never fails: a partial with nothing but a source id still normalizes.
package normalize

import (
	"strings"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/util"
)

// Listing produces a CanonicalListing from a partial record. Defaults:
// ChargesIncluded and Furnished false, IsActive true, Images empty (never
// nil). Normalizing an already-normalized record is a no-op.
func Listing(p domain.PartialListing, source string) domain.CanonicalListing {
	out := domain.CanonicalListing{
		Source:    source,
		SourceID:  strings.TrimSpace(p.SourceID),
		SourceURL: util.CanonicalURL(p.SourceURL),
		Title:     collapse(p.Title),

		Description: trimPtr(p.Description),

		Price:   nonNegative(p.Price),
		Surface: positive(p.Surface),

		Rooms:    nonNegativeInt(p.Rooms),
		Bedrooms: nonNegativeInt(p.Bedrooms),
		Baths:    nonNegativeInt(p.Baths),

		City:       trimPtr(p.City),
		PostalCode: trimPtr(p.PostalCode),
		Address:    trimPtr(p.Address),
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,

		PropertyType: trimPtr(p.PropertyType),
		EnergyClass:  upperPtr(p.EnergyClass),

		Furnished:       p.Furnished != nil && *p.Furnished,
		ChargesIncluded: p.ChargesIncluded != nil && *p.ChargesIncluded,

		Images:   cleanImages(p.Images),
		IsActive: true,
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := collapse(*s)
	if t == "" {
		return nil
	}
	return &t
}

func upperPtr(s *string) *string {
	t := trimPtr(s)
	if t == nil {
		return nil
	}
	u := strings.ToUpper(*t)
	return &u
}

func nonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func nonNegativeInt(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// cleanImages drops empty entries and duplicates, preserving source
// presentation order.
func cleanImages(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, u := range in {
		u = util.CanonicalURL(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
