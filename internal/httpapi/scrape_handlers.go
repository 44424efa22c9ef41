package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scheduler"
	"locascan-engine/internal/scrape"
	"locascan-engine/internal/scrape/types"
)

type ScrapeHandler struct {
	Runner    ScrapeRunner
	Scheduler *scheduler.Scheduler
	Env       string
}

// Live runs fetch → parse → normalize for the requested source(s) and
// returns listings without persisting anything.
func (h ScrapeHandler) Live(w http.ResponseWriter, r *http.Request) {
	criteria, verr := criteriaFromQuery(r)
	if verr != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_criteria", verr.Error())
		return
	}

	// With a platform the response carries the listing records directly.
	if requested := sourceParam(r); requested != "" {
		listings, err := h.Runner.Scrape(r.Context(), requested, criteria)
		if err != nil {
			var unknown *types.UnknownSourceError
			if errors.As(err, &unknown) {
				WriteError(w, r, http.StatusBadRequest, "unknown_source", unknown.Error())
				return
			}
			WriteError(w, r, http.StatusBadGateway, "scrape_failed", h.redact(err))
			return
		}
		if listings == nil {
			listings = []domain.CanonicalListing{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "success",
			"platform": requested,
			"count":    len(listings),
			"results":  listings,
		})
		return
	}

	// Without one, every registered source is scraped and the records stay
	// grouped per source.
	type sourceResult struct {
		Source   string                    `json:"source"`
		Count    int                       `json:"count"`
		Listings []domain.CanonicalListing `json:"listings"`
		Error    string                    `json:"error,omitempty"`
	}

	sources := h.Runner.Sources()
	out := make([]sourceResult, 0, len(sources))
	total := 0
	for _, name := range sources {
		res := sourceResult{Source: name, Listings: []domain.CanonicalListing{}}
		listings, err := h.Runner.Scrape(r.Context(), name, criteria)
		if err != nil {
			res.Error = h.redact(err)
		} else if listings != nil {
			res.Listings = listings
			res.Count = len(listings)
			total += res.Count
		}
		out = append(out, res)
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"count":   total,
		"results": out,
	})
}

// sourceParam reads the requested source name; "platform" is the name the
// public API documents, "source" an accepted alias.
func sourceParam(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("platform")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("source"))
}

// Run triggers a persisted scrape run. With ?source= it runs that source
// alone; without, every registered source, best-effort.
func (h ScrapeHandler) Run(w http.ResponseWriter, r *http.Request) {
	criteria, verr := criteriaFromQuery(r)
	if verr != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_criteria", verr.Error())
		return
	}

	type runSummary struct {
		Source  string `json:"source"`
		Fetched int    `json:"fetched"`
		Stored  int    `json:"stored"`
		Created int    `json:"created"`
		Updated int    `json:"updated"`
		Skipped int    `json:"skipped"`
		Error   string `json:"error,omitempty"`
	}
	summarize := func(res scrape.RunResult) runSummary {
		s := runSummary{
			Source:  res.Source,
			Fetched: res.Fetched,
			Stored:  res.Stored,
			Created: res.Created,
			Updated: res.Updated,
			Skipped: res.Skipped,
		}
		if res.Err != nil {
			s.Error = h.redact(res.Err)
		}
		return s
	}

	if src := sourceParam(r); src != "" {
		res, err := h.Runner.Run(r.Context(), src, criteria)
		if err != nil {
			var unknown *types.UnknownSourceError
			if errors.As(err, &unknown) {
				WriteError(w, r, http.StatusBadRequest, "unknown_source", unknown.Error())
				return
			}
			WriteError(w, r, http.StatusBadGateway, "run_failed", h.redact(err))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"results": []runSummary{summarize(res)}})
		return
	}

	results := h.Runner.RunAll(r.Context(), criteria)
	out := make([]runSummary, 0, len(results))
	for _, res := range results {
		out = append(out, summarize(res))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h ScrapeHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		WriteJSON(w, http.StatusOK, map[string]any{})
		return
	}
	WriteJSON(w, http.StatusOK, h.Scheduler.Status())
}

func (h ScrapeHandler) Sources(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"sources": h.Runner.Sources()})
}

// redact hides upstream details from prod responses; logs keep the full error.
func (h ScrapeHandler) redact(err error) string {
	if h.Env == "prod" {
		return "upstream fetch failed"
	}
	return err.Error()
}

// criteriaFromQuery maps URL query params onto SearchCriteria and validates
// the result.
func criteriaFromQuery(r *http.Request) (domain.SearchCriteria, error) {
	q := r.URL.Query()

	c := domain.SearchCriteria{
		City:          strings.TrimSpace(q.Get("city")),
		PostalCode:    strings.TrimSpace(q.Get("postal_code")),
		AvailableFrom: strings.TrimSpace(q.Get("available_from")),
		AvailableTo:   strings.TrimSpace(q.Get("available_to")),
	}
	if v := q.Get("property_types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.PropertyTypes = append(c.PropertyTypes, t)
			}
		}
	}

	var parseErr error
	floatParam := func(key string) *float64 {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parseErr = &domain.ValidationError{Field: key, Reason: "must be a number"}
			return nil
		}
		return &f
	}
	intParam := func(key string) *int {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErr = &domain.ValidationError{Field: key, Reason: "must be an integer"}
			return nil
		}
		return &n
	}

	c.PriceMin = floatParam("price_min")
	c.PriceMax = floatParam("price_max")
	c.SurfaceMin = floatParam("surface_min")
	c.RoomsMin = intParam("rooms_min")
	c.RoomsMax = intParam("rooms_max")
	if p := intParam("page"); p != nil {
		c.Page = *p
	}
	if p := intParam("page_size"); p != nil {
		c.PageSize = *p
	}
	if parseErr != nil {
		return c, parseErr
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
