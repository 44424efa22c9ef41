package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recover(d.Log))
	r.Use(AccessLog(d.Log))

	hh := HealthHandler{Listings: d.Listings}
	r.Get("/health", hh.Health)

	sh := ScrapeHandler{Runner: d.Runner, Scheduler: d.Scheduler, Env: d.Env}
	r.Get("/scrape", sh.Live)
	r.Post("/scrape/run", sh.Run)
	r.Get("/scrape/status", sh.Status)
	r.Get("/sources", sh.Sources)

	lh := ListingsHandler{Listings: d.Listings}
	r.Get("/listings", lh.List)

	eh := EventsHandler{Hub: d.Hub}
	r.Get("/events", eh.ServeSSE)

	ch := ConfigHandler{Path: d.ConfigPath}
	r.Get("/config", ch.Get)
	r.Put("/config", ch.Put)

	return r
}
