// Package studapart scrapes listings from Studapart's JSON search API.
// The API is search-engine backed and its response shape drifts, so the
// parser walks a chain of fallback keys for every field.
package studapart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/scrape/util"
)

const (
	sourceName = "studapart"
	siteURL    = "https://www.studapart.com"
	searchURL  = "https://search-api.studapart.com/api/v1/properties/search"
)

// cityPostalCodes maps the cities the API expects a postal-code array for.
// Cities outside the table are sent by name only.
var cityPostalCodes = map[string][]string{
	"paris":      {"75001", "75002", "75003", "75004", "75005", "75006", "75007", "75008", "75009", "75010", "75011", "75012", "75013", "75014", "75015", "75016", "75017", "75018", "75019", "75020"},
	"lyon":       {"69001", "69002", "69003", "69004", "69005", "69006", "69007", "69008", "69009"},
	"marseille":  {"13001", "13002", "13003", "13004", "13005", "13006", "13007", "13008", "13009", "13010", "13011", "13012", "13013", "13014", "13015", "13016"},
	"toulouse":   {"31000", "31100", "31200", "31300", "31400", "31500"},
	"bordeaux":   {"33000", "33100", "33200", "33300", "33800"},
	"lille":      {"59000", "59160", "59260", "59777", "59800"},
	"nantes":     {"44000", "44100", "44200", "44300"},
	"rennes":     {"35000", "35200", "35700"},
	"strasbourg": {"67000", "67100", "67200"},
	"montpellier": {"34000", "34070", "34080", "34090"},
}

type Scraper struct {
	cfg    types.ClientConfig
	client *http.Client
	log    *slog.Logger
}

func New(cfg types.ClientConfig, log *slog.Logger) *Scraper {
	cfg = cfg.WithDefaults()
	return &Scraper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("source", sourceName),
	}
}

func (s *Scraper) Name() string { return sourceName }

// searchPayload is the POST body of the search endpoint.
type searchPayload struct {
	City        string   `json:"city"`
	PostalCodes []string `json:"postalCodes,omitempty"`
	BudgetMin   *float64 `json:"budgetMin,omitempty"`
	BudgetMax   *float64 `json:"budgetMax,omitempty"`
	SurfaceMin  *float64 `json:"surfaceMin,omitempty"`
	RoomsMin    *int     `json:"roomsMin,omitempty"`
	Page        int      `json:"page"`
	PerPage     int      `json:"perPage"`
}

func (s *Scraper) payload(criteria domain.SearchCriteria) searchPayload {
	city := strings.TrimSpace(criteria.City)
	p := searchPayload{
		City:       city,
		BudgetMin:  criteria.PriceMin,
		BudgetMax:  criteria.PriceMax,
		SurfaceMin: criteria.SurfaceMin,
		RoomsMin:   criteria.RoomsMin,
		Page:       criteria.Page,
		PerPage:    criteria.PageSize,
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 50
	}
	if codes, ok := cityPostalCodes[strings.ToLower(city)]; ok {
		p.PostalCodes = codes
	} else if criteria.PostalCode != "" {
		p.PostalCodes = []string{criteria.PostalCode}
	}
	return p
}

func (s *Scraper) FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]types.Fragment, error) {
	body, err := json.Marshal(s.payload(criteria))
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: searchURL, Err: err}
	}

	var raw []byte
	err = util.Retry(ctx, "studapart search", s.cfg.RetryAttempts, s.cfg.RetryBaseDelay, func() error {
		if s.cfg.Limiter != nil {
			if err := s.cfg.Limiter.WaitURL(ctx, searchURL); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", s.cfg.UserAgent)
		req.Header.Set("Accept-Language", s.cfg.AcceptLanguage)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		raw, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: searchURL, Err: err}
	}

	fragments, err := hitFragments(raw)
	if err != nil {
		return nil, &types.FetchError{Source: sourceName, URL: searchURL, Err: err}
	}
	s.log.Debug("fetched search response", "fragments", len(fragments))
	return fragments, nil
}

// hitFragments splits the response into one fragment per hit. The hits array
// has moved between keys across API versions.
func hitFragments(raw []byte) ([]types.Fragment, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var items []json.RawMessage
	for _, key := range []string{"hits", "results", "items", "properties"} {
		node, ok := envelope[key]
		if !ok {
			continue
		}
		// Newer versions nest the array one level down ({"hits":{"hits":[...]}}).
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(node, &nested); err == nil {
			if inner, ok := nested[key]; ok {
				node = inner
			}
		}
		if err := json.Unmarshal(node, &items); err == nil {
			break
		}
	}

	fragments := make([]types.Fragment, 0, len(items))
	for _, item := range items {
		fragments = append(fragments, types.Fragment{JSON: item})
	}
	return fragments, nil
}

func (s *Scraper) ParseFragment(f types.Fragment) (*domain.PartialListing, error) {
	if len(f.JSON) == 0 {
		return nil, nil
	}
	var hit map[string]any
	if err := json.Unmarshal(f.JSON, &hit); err != nil {
		return nil, &types.ParseError{Source: sourceName, Reason: err.Error()}
	}

	// Search-engine style hits wrap the document in _source.
	if src, ok := hit["_source"].(map[string]any); ok {
		if id := firstString(hit, "_id"); id != "" {
			if _, has := src["id"]; !has {
				src["id"] = id
			}
		}
		hit = src
	}

	id := firstString(hit, "id", "propertyId", "uuid", "slug")
	if id == "" {
		return nil, &types.ParseError{Source: sourceName, Reason: "hit carries no id"}
	}

	link := firstString(hit, "url", "link", "permalink")
	if link == "" {
		link = siteURL + "/properties/" + id
	} else {
		link = util.AbsoluteURL(siteURL, link)
	}

	p := &domain.PartialListing{
		SourceID:  id,
		SourceURL: link,
		Title:     util.CleanText(firstString(hit, "title", "name", "label")),
		Price:     firstNumber(hit, "price", "budget", "rent", "monthlyRent"),
		Surface:   firstNumber(hit, "surface", "area", "size"),
		Rooms:     firstInt(hit, "rooms", "roomCount", "nbRooms"),
		Bedrooms:  firstInt(hit, "bedrooms", "bedroomCount", "nbBedrooms"),
	}

	if desc := util.CleanText(firstString(hit, "description", "summary")); desc != "" {
		p.Description = &desc
	}
	if city := util.CleanText(firstString(hit, "city", "cityName")); city != "" {
		p.City = &city
	}
	if pc := firstString(hit, "postalCode", "zipCode", "zip"); pc != "" {
		p.PostalCode = &pc
	}
	if addr := util.CleanText(firstString(hit, "address", "fullAddress")); addr != "" {
		p.Address = &addr
	}
	if pt := firstString(hit, "propertyType", "type", "kind"); pt != "" {
		p.PropertyType = &pt
	}
	if furnished, ok := firstBool(hit, "furnished", "isFurnished"); ok {
		p.Furnished = &furnished
	}
	if charges, ok := firstBool(hit, "chargesIncluded", "allInclusive"); ok {
		p.ChargesIncluded = &charges
	}
	if loc, ok := hit["location"].(map[string]any); ok {
		p.Latitude = firstNumber(loc, "lat", "latitude")
		p.Longitude = firstNumber(loc, "lon", "lng", "longitude")
	}

	for _, img := range imageURLs(hit) {
		// The API hands back CDN-relative paths more often than not.
		if abs := util.AbsoluteURL(siteURL, img); abs != "" {
			p.Images = append(p.Images, abs)
		}
	}

	return p, nil
}

func imageURLs(hit map[string]any) []string {
	var out []string
	for _, key := range []string{"images", "pictures", "photos"} {
		arr, ok := hit[key].([]any)
		if !ok {
			continue
		}
		for _, item := range arr {
			switch v := item.(type) {
			case string:
				out = append(out, v)
			case map[string]any:
				if u := firstString(v, "url", "src", "path"); u != "" {
					out = append(out, u)
				}
			}
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNumber(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return &v
		case string:
			if n := util.ParsePrice(v); n != nil {
				return n
			}
		}
	}
	return nil
}

func firstInt(m map[string]any, keys ...string) *int {
	if n := firstNumber(m, keys...); n != nil {
		i := int(*n)
		return &i
	}
	return nil
}

func firstBool(m map[string]any, keys ...string) (bool, bool) {
	for _, key := range keys {
		if v, ok := m[key].(bool); ok {
			return v, true
		}
	}
	return false, false
}
