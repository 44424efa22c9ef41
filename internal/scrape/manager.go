package scrape

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/events"
	"locascan-engine/internal/normalize"
	"locascan-engine/internal/scrape/types"
)

// ListingStore is the slice of the repository the manager needs.
type ListingStore interface {
	UpsertListing(ctx context.Context, c domain.CanonicalListing) (domain.Listing, bool, error)
}

// RunResult summarizes one completed source run.
type RunResult struct {
	Source   string        `json:"source"`
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"-"`
	Err      error         `json:"-"`
}

// Manager owns the adapter registry and drives the fetch → parse → normalize
// → persist pipeline. The registry is fixed at construction; lookups never
// mutate it.
type Manager struct {
	sources map[string]types.Source
	order   []string
	store   ListingStore
	hub     *events.Hub
	log     *slog.Logger
}

func NewManager(store ListingStore, hub *events.Hub, log *slog.Logger, sources ...types.Source) *Manager {
	m := &Manager{
		sources: make(map[string]types.Source, len(sources)),
		store:   store,
		hub:     hub,
		log:     log,
	}
	for _, s := range sources {
		if _, dup := m.sources[s.Name()]; dup {
			continue
		}
		m.sources[s.Name()] = s
		m.order = append(m.order, s.Name())
	}
	sort.Strings(m.order)
	return m
}

// Sources lists the registered source names, sorted.
func (m *Manager) Sources() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Manager) lookup(name string) (types.Source, error) {
	s, ok := m.sources[name]
	if !ok {
		return nil, &types.UnknownSourceError{Name: name, Known: m.Sources()}
	}
	return s, nil
}

// Run executes the full pipeline for one source and persists the results.
// Individual bad fragments and failed upserts are logged and skipped; only
// invalid criteria, an unknown name, or a fetch failure fails the run.
func (m *Manager) Run(ctx context.Context, name string, criteria domain.SearchCriteria) (RunResult, error) {
	if err := criteria.Validate(); err != nil {
		return RunResult{Source: name}, err
	}
	src, err := m.lookup(name)
	if err != nil {
		return RunResult{Source: name}, err
	}

	start := time.Now()
	m.publish(events.TypeRunStarted, events.RunPayload{Source: name})

	res := RunResult{Source: name}
	fragments, err := src.FetchListings(ctx, criteria)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		m.log.Error("fetch failed", "source", name, "error", err)
		m.publish(events.TypeRunFailed, events.RunPayload{Source: name, Error: err.Error()})
		return res, err
	}
	res.Fetched = len(fragments)

	for _, c := range m.parseAll(src, fragments, criteria, &res) {
		listing, created, err := m.store.UpsertListing(ctx, c)
		if err != nil {
			res.Skipped++
			perr := &types.PersistenceError{Source: name, SourceID: c.SourceID, Err: err}
			m.log.Error("persist failed", "source", name, "source_id", c.SourceID, "error", perr)
			continue
		}
		res.Stored++
		if created {
			res.Created++
			m.publish(events.TypeListingNew, listing)
		} else {
			res.Updated++
			m.publish(events.TypeListingSeen, listing)
		}
	}

	res.Duration = time.Since(start)
	m.log.Info("run finished",
		"source", name,
		"fetched", res.Fetched,
		"stored", res.Stored,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"duration", res.Duration.Round(time.Millisecond),
	)
	m.publish(events.TypeRunFinished, events.RunPayload{
		Source:   name,
		Fetched:  res.Fetched,
		Stored:   res.Stored,
		Created:  res.Created,
		Updated:  res.Updated,
		Skipped:  res.Skipped,
		Duration: res.Duration.Round(time.Millisecond).String(),
	})
	return res, nil
}

// RunAll runs every registered source concurrently, best-effort: one source's
// failure never cancels its siblings. Results are keyed by source name.
func (m *Manager) RunAll(ctx context.Context, criteria domain.SearchCriteria) map[string]RunResult {
	var g errgroup.Group
	results := make(chan RunResult, len(m.order))

	for _, name := range m.order {
		name := name
		g.Go(func() error {
			res, err := m.Run(ctx, name, criteria)
			if err != nil {
				res.Err = err
			}
			results <- res
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	out := make(map[string]RunResult, len(m.order))
	for res := range results {
		out[res.Source] = res
	}
	return out
}

// Scrape runs fetch → parse → normalize for one source without touching the
// repository. This is the live-query path.
func (m *Manager) Scrape(ctx context.Context, name string, criteria domain.SearchCriteria) ([]domain.CanonicalListing, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	src, err := m.lookup(name)
	if err != nil {
		return nil, err
	}

	fragments, err := src.FetchListings(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var res RunResult
	return m.parseAll(src, fragments, criteria, &res), nil
}

// parseAll maps fragments to canonical listings, dropping unparseable
// fragments, records without a source id, and records the platform returned
// despite being outside the criteria. Duplicate (source, source_id) pairs
// within one batch collapse to the last occurrence.
func (m *Manager) parseAll(src types.Source, fragments []types.Fragment, criteria domain.SearchCriteria, res *RunResult) []domain.CanonicalListing {
	name := src.Name()
	byID := make(map[string]int)
	out := make([]domain.CanonicalListing, 0, len(fragments))

	for _, f := range fragments {
		p, err := src.ParseFragment(f)
		if err != nil {
			res.Skipped++
			m.log.Warn("fragment parse failed", "source", name, "error", err)
			continue
		}
		if p == nil {
			continue
		}
		c := normalize.Listing(*p, name)
		if c.SourceID == "" {
			res.Skipped++
			m.log.Warn("listing without source id dropped", "source", name, "url", c.SourceURL)
			continue
		}
		if keep, reason := KeepListing(c, criteria); !keep {
			res.Skipped++
			m.log.Debug("listing outside criteria dropped", "source", name, "source_id", c.SourceID, "reason", reason)
			continue
		}
		if i, dup := byID[c.SourceID]; dup {
			out[i] = c
			continue
		}
		byID[c.SourceID] = len(out)
		out = append(out, c)
	}
	return out
}

func (m *Manager) publish(typ string, data any) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(events.MakeEvent("", typ, 1, data))
}
