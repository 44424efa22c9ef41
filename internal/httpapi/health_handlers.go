package httpapi

import (
	"net/http"
)

type HealthHandler struct {
	Listings ListingReader
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"ok": true}
	if h.Listings != nil {
		total, active, err := h.Listings.CountListings(r.Context(), "")
		if err != nil {
			out["ok"] = false
			out["db"] = "unreachable"
		} else {
			out["listings_total"] = total
			out["listings_active"] = active
		}
	}
	WriteJSON(w, http.StatusOK, out)
}
