package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource replays canned fragments. Fragment JSON is the partial listing
// itself; a fragment decoding to source_id "boom" fails to parse.
type fakeSource struct {
	name      string
	fragments []types.Fragment
	fetchErr  error
}

type fakePartial struct {
	SourceID string   `json:"source_id"`
	Title    string   `json:"title"`
	Price    *float64 `json:"price"`
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchListings(ctx context.Context, criteria domain.SearchCriteria) ([]types.Fragment, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.fragments, nil
}

func (f *fakeSource) ParseFragment(fr types.Fragment) (*domain.PartialListing, error) {
	var p fakePartial
	if err := json.Unmarshal(fr.JSON, &p); err != nil {
		return nil, &types.ParseError{Source: f.name, Reason: err.Error()}
	}
	if p.SourceID == "boom" {
		return nil, &types.ParseError{Source: f.name, Reason: "markup drift"}
	}
	return &domain.PartialListing{SourceID: p.SourceID, Title: p.Title, Price: p.Price}, nil
}

func frag(sourceID, title string, price *float64) types.Fragment {
	b, _ := json.Marshal(fakePartial{SourceID: sourceID, Title: title, Price: price})
	return types.Fragment{JSON: b}
}

// memStore is an in-memory ListingStore keyed like the real table.
type memStore struct {
	mu      sync.Mutex
	rows    map[string]domain.Listing
	upserts int
	failFor string
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]domain.Listing)}
}

func (s *memStore) UpsertListing(ctx context.Context, c domain.CanonicalListing) (domain.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.SourceID == s.failFor {
		return domain.Listing{}, false, errors.New("constraint violation")
	}
	s.upserts++
	key := c.Source + "/" + c.SourceID
	existing, ok := s.rows[key]
	l := domain.Listing{CanonicalListing: c}
	if ok {
		l.ID = existing.ID
	} else {
		l.ID = uuid.New()
	}
	s.rows[key] = l
	return l, !ok, nil
}

func fptr(v float64) *float64 { return &v }

func TestRunPersistsAndCounts(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "Studio A", fptr(500)),
		frag("2", "Studio B", fptr(600)),
		frag("3", "Studio C", nil),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	res, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Fetched != 3 || res.Stored != 3 || res.Created != 3 || res.Updated != 0 {
		t.Errorf("unexpected counts: %+v", res)
	}

	// Second identical run updates instead of creating.
	res, err = m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if res.Created != 0 || res.Updated != 3 {
		t.Errorf("second run counts: %+v", res)
	}
}

func TestRunSkipsBadFragmentsAndEmptyIDs(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "ok", fptr(500)),
		frag("boom", "bad markup", nil),
		frag("", "no id", fptr(700)),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	res, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stored != 1 {
		t.Errorf("Stored = %d; want 1", res.Stored)
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d; want 2", res.Skipped)
	}
}

func TestRunCollapsesDuplicateKeysWithinBatch(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("dup", "first", fptr(500)),
		frag("dup", "second", fptr(550)),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	res, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stored != 1 || st.upserts != 1 {
		t.Errorf("Stored = %d, upserts = %d; want 1, 1", res.Stored, st.upserts)
	}
	if got := st.rows["alpha/dup"].Title; got != "second" {
		t.Errorf("kept occurrence = %q; want the last one", got)
	}
}

func TestRunDropsListingsOutsideCriteria(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("cheap", "within budget", fptr(500)),
		frag("dear", "over budget", fptr(1500)),
		frag("unknown", "no price", nil),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	res, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes", PriceMax: fptr(900)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Unknown price is kept; only the known-over-budget one drops.
	if res.Stored != 2 || res.Skipped != 1 {
		t.Errorf("Stored = %d, Skipped = %d; want 2, 1", res.Stored, res.Skipped)
	}
	if _, ok := st.rows["alpha/dear"]; ok {
		t.Error("over-budget listing was persisted")
	}
}

func TestRunRejectsInvalidCriteria(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "ok", fptr(500)),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	_, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes", PriceMax: fptr(-1)})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v; want *ValidationError", err)
	}
	if verr.Field != "price_max" {
		t.Errorf("field = %q; want price_max", verr.Field)
	}
	if st.upserts != 0 {
		t.Errorf("invalid criteria caused %d upserts; want 0", st.upserts)
	}
}

func TestScrapeRejectsInvalidCriteria(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "ok", fptr(500)),
	}}
	m := NewManager(newMemStore(), nil, testLogger(), src)

	_, err := m.Scrape(context.Background(), "alpha", domain.SearchCriteria{})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v; want *ValidationError", err)
	}
	if verr.Field != "city" {
		t.Errorf("field = %q; want city", verr.Field)
	}
}

func TestRunUnknownSource(t *testing.T) {
	m := NewManager(newMemStore(), nil, testLogger(), &fakeSource{name: "alpha"}, &fakeSource{name: "beta"})

	_, err := m.Run(context.Background(), "gamma", domain.SearchCriteria{City: "Rennes"})
	var unknown *types.UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v; want *UnknownSourceError", err)
	}
	msg := unknown.Error()
	if !strings.Contains(msg, "alpha") || !strings.Contains(msg, "beta") {
		t.Errorf("error must list known sources, got %q", msg)
	}
}

func TestRunAllIsBestEffort(t *testing.T) {
	down := &fakeSource{name: "down", fetchErr: &types.FetchError{Source: "down", URL: "https://x", Err: errors.New("timeout")}}
	up := &fakeSource{name: "up", fragments: []types.Fragment{
		frag("1", "a", fptr(500)),
		frag("2", "b", fptr(600)),
		frag("3", "c", fptr(700)),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), down, up)

	results := m.RunAll(context.Background(), domain.SearchCriteria{City: "Rennes"})
	if len(results) != 2 {
		t.Fatalf("got %d results; want 2", len(results))
	}
	if results["up"].Stored != 3 {
		t.Errorf("up stored %d; want 3", results["up"].Stored)
	}
	if results["down"].Err == nil {
		t.Error("down must carry its fetch error")
	}
	if len(st.rows) != 3 {
		t.Errorf("store has %d rows; want 3", len(st.rows))
	}
}

func TestRunContinuesPastPersistFailure(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "a", fptr(500)),
		frag("2", "b", fptr(600)),
	}}
	st := newMemStore()
	st.failFor = "1"
	m := NewManager(st, nil, testLogger(), src)

	res, err := m.Run(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stored != 1 || res.Skipped != 1 {
		t.Errorf("Stored = %d, Skipped = %d; want 1, 1", res.Stored, res.Skipped)
	}
}

func TestScrapeDoesNotPersist(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{
		frag("1", "a", fptr(500)),
	}}
	st := newMemStore()
	m := NewManager(st, nil, testLogger(), src)

	listings, err := m.Scrape(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(listings) != 1 {
		t.Errorf("got %d listings; want 1", len(listings))
	}
	if st.upserts != 0 {
		t.Errorf("Scrape caused %d upserts; want 0", st.upserts)
	}
	if !listings[0].IsActive {
		t.Error("normalized listing must be active")
	}
}

func TestScrapeEmptyResultIsNotAnError(t *testing.T) {
	src := &fakeSource{name: "alpha", fragments: []types.Fragment{}}
	m := NewManager(newMemStore(), nil, testLogger(), src)

	listings, err := m.Scrape(context.Background(), "alpha", domain.SearchCriteria{City: "Rennes"})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if listings == nil || len(listings) != 0 {
		t.Errorf("listings = %v; want empty non-nil slice", listings)
	}
}
