package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"locascan-engine/internal/store"
)

type ListingsHandler struct {
	Listings ListingReader
}

const defaultListLimit = 50

// List serves stored listings, filtered by query params. Only active rows
// are returned unless include_inactive=1.
func (h ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := store.ListingFilter{
		Source:     strings.TrimSpace(q.Get("source")),
		City:       strings.TrimSpace(q.Get("city")),
		PostalCode: strings.TrimSpace(q.Get("postal_code")),
		ActiveOnly: q.Get("include_inactive") != "1",
		Limit:      defaultListLimit,
	}

	var badParam string
	floatParam := func(key string) *float64 {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badParam = key
			return nil
		}
		return &n
	}
	f.PriceMin = floatParam("price_min")
	f.PriceMax = floatParam("price_max")
	f.SurfaceMin = floatParam("surface_min")
	if v := q.Get("rooms_min"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badParam = "rooms_min"
		} else {
			f.RoomsMin = &n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			badParam = "limit"
		} else {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badParam = "offset"
		} else {
			f.Offset = n
		}
	}
	if badParam != "" {
		WriteError(w, r, http.StatusBadRequest, "invalid_param", badParam+" must be a valid number")
		return
	}

	listings, err := h.Listings.SearchListings(r.Context(), f)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "query_failed", "could not query listings")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"count":    len(listings),
		"listings": listings,
	})
}
