package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape"
	"locascan-engine/internal/scrape/types"
	"locascan-engine/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	sources  []string
	listings []domain.CanonicalListing
	fetchErr error
}

func (f *fakeRunner) Sources() []string { return f.sources }

func (f *fakeRunner) Scrape(ctx context.Context, name string, criteria domain.SearchCriteria) ([]domain.CanonicalListing, error) {
	if !f.knows(name) {
		return nil, &types.UnknownSourceError{Name: name, Known: f.sources}
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.listings, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, criteria domain.SearchCriteria) (scrape.RunResult, error) {
	if !f.knows(name) {
		return scrape.RunResult{}, &types.UnknownSourceError{Name: name, Known: f.sources}
	}
	if f.fetchErr != nil {
		return scrape.RunResult{Source: name}, f.fetchErr
	}
	return scrape.RunResult{Source: name, Fetched: len(f.listings), Stored: len(f.listings), Created: len(f.listings)}, nil
}

func (f *fakeRunner) RunAll(ctx context.Context, criteria domain.SearchCriteria) map[string]scrape.RunResult {
	out := make(map[string]scrape.RunResult, len(f.sources))
	for _, name := range f.sources {
		res, err := f.Run(ctx, name, criteria)
		res.Err = err
		out[name] = res
	}
	return out
}

func (f *fakeRunner) knows(name string) bool {
	for _, s := range f.sources {
		if s == name {
			return true
		}
	}
	return false
}

type fakeReader struct {
	listings []domain.Listing
	filter   store.ListingFilter
	err      error
}

func (f *fakeReader) SearchListings(ctx context.Context, filter store.ListingFilter) ([]domain.Listing, error) {
	f.filter = filter
	return f.listings, f.err
}

func (f *fakeReader) CountListings(ctx context.Context, source string) (int64, int64, error) {
	return int64(len(f.listings)), int64(len(f.listings)), f.err
}

func newTestRouter(runner ScrapeRunner, reader ListingReader, env string) http.Handler {
	return NewRouter(Deps{
		Runner:   runner,
		Listings: reader,
		Log:      testLogger(),
		Env:      env,
	})
}

func doReq(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s %s: invalid JSON body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, body
}

func TestScrapeRequiresCity(t *testing.T) {
	h := newTestRouter(&fakeRunner{sources: []string{"leboncoin"}}, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/scrape")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "invalid_criteria" {
		t.Errorf("code = %v; want invalid_criteria", errObj["code"])
	}
	if !strings.Contains(errObj["message"].(string), "city") {
		t.Errorf("message %q does not name the field", errObj["message"])
	}
}

func TestScrapeRejectsNonPositiveBudget(t *testing.T) {
	h := newTestRouter(&fakeRunner{sources: []string{"leboncoin"}}, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes&price_max=0")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	errObj := body["error"].(map[string]any)
	if !strings.Contains(errObj["message"].(string), "price_max") {
		t.Errorf("message %q does not name price_max", errObj["message"])
	}
}

func TestScrapeUnknownSourceListsPlatforms(t *testing.T) {
	h := newTestRouter(&fakeRunner{sources: []string{"leboncoin", "seloger"}}, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes&source=craigslist")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "unknown_source" {
		t.Errorf("code = %v; want unknown_source", errObj["code"])
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "leboncoin") || !strings.Contains(msg, "seloger") {
		t.Errorf("message %q does not list the known platforms", msg)
	}
}

func TestScrapeLiveEnvelope(t *testing.T) {
	price := 650.0
	runner := &fakeRunner{
		sources: []string{"leboncoin"},
		listings: []domain.CanonicalListing{
			{Source: "leboncoin", SourceID: "1", Title: "T2", Price: &price, IsActive: true, Images: []string{}},
		},
	}
	h := newTestRouter(runner, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body["status"] != "success" {
		t.Errorf("status = %v; want success", body["status"])
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v; want 1", body["count"])
	}
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	if first["source"] != "leboncoin" {
		t.Errorf("source = %v", first["source"])
	}
	listing := first["listings"].([]any)[0].(map[string]any)
	if listing["source_id"] != "1" || listing["price"].(float64) != 650 {
		t.Errorf("unexpected listing payload: %v", listing)
	}
}

func TestScrapeLiveSinglePlatformFlattensResults(t *testing.T) {
	price := 650.0
	runner := &fakeRunner{
		sources: []string{"leboncoin", "seloger"},
		listings: []domain.CanonicalListing{
			{Source: "leboncoin", SourceID: "1", Title: "T2", Price: &price, IsActive: true, Images: []string{}},
		},
	}
	h := newTestRouter(runner, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes&platform=leboncoin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body["status"] != "success" {
		t.Errorf("status = %v; want success", body["status"])
	}
	if body["platform"] != "leboncoin" {
		t.Errorf("platform = %v; want leboncoin", body["platform"])
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v; want 1", body["count"])
	}

	// results carry the listing records themselves, not per-source wrappers
	results := body["results"].([]any)
	record := results[0].(map[string]any)
	if record["source_id"] != "1" || record["price"].(float64) != 650 {
		t.Errorf("results[0] is not a listing record: %v", record)
	}
}

func TestScrapeLiveSinglePlatformUpstreamFailure(t *testing.T) {
	runner := &fakeRunner{
		sources:  []string{"leboncoin"},
		fetchErr: &types.FetchError{Source: "leboncoin", URL: "https://www.leboncoin.fr/recherche", Err: io.ErrUnexpectedEOF},
	}
	h := newTestRouter(runner, &fakeReader{}, "prod")

	rec, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes&platform=leboncoin")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d; want 502", rec.Code)
	}
	msg := body["error"].(map[string]any)["message"].(string)
	if strings.Contains(msg, "leboncoin.fr") {
		t.Errorf("prod error %q leaks upstream detail", msg)
	}
}

func TestScrapeRedactsUpstreamErrorsInProd(t *testing.T) {
	runner := &fakeRunner{
		sources:  []string{"leboncoin"},
		fetchErr: &types.FetchError{Source: "leboncoin", URL: "https://www.leboncoin.fr/recherche?secret=1", Err: io.ErrUnexpectedEOF},
	}

	// dev keeps the detail
	h := newTestRouter(runner, &fakeReader{}, "dev")
	_, body := doReq(t, h, http.MethodGet, "/scrape?city=Rennes")
	devMsg := body["results"].([]any)[0].(map[string]any)["error"].(string)
	if !strings.Contains(devMsg, "leboncoin.fr") {
		t.Errorf("dev error %q lost the detail", devMsg)
	}

	// prod hides it
	h = newTestRouter(runner, &fakeReader{}, "prod")
	_, body = doReq(t, h, http.MethodGet, "/scrape?city=Rennes")
	prodMsg := body["results"].([]any)[0].(map[string]any)["error"].(string)
	if strings.Contains(prodMsg, "leboncoin.fr") || strings.Contains(prodMsg, "secret") {
		t.Errorf("prod error %q leaks upstream detail", prodMsg)
	}
}

func TestRunSingleSource(t *testing.T) {
	price := 650.0
	runner := &fakeRunner{
		sources: []string{"leboncoin"},
		listings: []domain.CanonicalListing{
			{Source: "leboncoin", SourceID: "1", Price: &price},
		},
	}
	h := newTestRouter(runner, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodPost, "/scrape/run?city=Rennes&source=leboncoin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	results := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("got %d results; want 1", len(results))
	}
	first := results[0].(map[string]any)
	if first["stored"].(float64) != 1 || first["created"].(float64) != 1 {
		t.Errorf("unexpected summary: %v", first)
	}
}

func TestListingsEnvelopeAndFilters(t *testing.T) {
	reader := &fakeReader{listings: []domain.Listing{
		{CanonicalListing: domain.CanonicalListing{Source: "espacil", SourceID: "9", IsActive: true, Images: []string{}}},
	}}
	h := newTestRouter(&fakeRunner{sources: []string{"espacil"}}, reader, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/listings?city=Rennes&price_max=900&source=espacil")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v; want 1", body["count"])
	}
	if reader.filter.City != "Rennes" || reader.filter.Source != "espacil" {
		t.Errorf("filter not forwarded: %+v", reader.filter)
	}
	if reader.filter.PriceMax == nil || *reader.filter.PriceMax != 900 {
		t.Errorf("price_max not forwarded: %+v", reader.filter)
	}
	if !reader.filter.ActiveOnly {
		t.Error("listings must default to active only")
	}
}

func TestListingsRejectsBadParams(t *testing.T) {
	h := newTestRouter(&fakeRunner{}, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/listings?price_max=abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", rec.Code)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "invalid_param" {
		t.Errorf("code = %v; want invalid_param", errObj["code"])
	}
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeRunner{}, &fakeReader{}, "dev")

	rec, body := doReq(t, h, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	if body["ok"] != true {
		t.Errorf("ok = %v; want true", body["ok"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestRouter(&fakeRunner{}, &fakeReader{}, "dev")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
