// Package scheduler drives recurring per-source scrape runs. Each source
// gets its own ticker goroutine and interval; a run still in flight when the
// next tick lands means the tick is dropped, never queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/events"
	"locascan-engine/internal/scrape"
)

// Runner is what the scheduler needs from the scraper manager.
type Runner interface {
	Run(ctx context.Context, name string, criteria domain.SearchCriteria) (scrape.RunResult, error)
}

// StaleStore is the slice of the repository a post-run sweep needs.
type StaleStore interface {
	DeactivateStale(ctx context.Context, source string, maxAge time.Duration) (int64, error)
}

// Job is one source on a timer.
type Job struct {
	Source   string
	Interval time.Duration
	Criteria domain.SearchCriteria
}

type Scheduler struct {
	manager  Runner
	store    StaleStore
	hub      *events.Hub
	log      *slog.Logger
	staleAge time.Duration

	mu     sync.Mutex
	status map[string]*sourceState
	wg     sync.WaitGroup
}

type sourceState struct {
	running   sync.Mutex
	lastRunAt time.Time
	lastOkAt  time.Time
	lastErr   string
	lastSaved int
}

func New(manager Runner, store StaleStore, hub *events.Hub, log *slog.Logger, staleAge time.Duration) *Scheduler {
	return &Scheduler{
		manager:  manager,
		store:    store,
		hub:      hub,
		log:      log,
		staleAge: staleAge,
		status:   make(map[string]*sourceState),
	}
}

// Start launches one loop per job and returns. Loops stop when ctx is
// cancelled; Wait blocks until they have all drained.
func (s *Scheduler) Start(ctx context.Context, jobs []Job) {
	for _, job := range jobs {
		job := job
		s.stateFor(job.Source)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job)
		}()
	}
}

func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, job Job) {
	// First run right away so a fresh deployment has data before the
	// first interval elapses.
	s.RunOnce(ctx, job)

	t := time.NewTicker(job.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes one scheduled run for a job. If the previous run for the
// same source has not finished, the call is dropped.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) {
	st := s.stateFor(job.Source)
	if !st.running.TryLock() {
		s.log.Warn("previous run still in flight, dropping tick", "source", job.Source)
		return
	}
	defer st.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("run panicked", "source", job.Source, "panic", r)
			s.mu.Lock()
			st.lastErr = "panic during run"
			s.mu.Unlock()
		}
	}()

	res, err := s.manager.Run(ctx, job.Source, job.Criteria)

	s.mu.Lock()
	st.lastRunAt = time.Now()
	if err != nil {
		st.lastErr = err.Error()
	} else {
		st.lastOkAt = st.lastRunAt
		st.lastErr = ""
		st.lastSaved = res.Stored
	}
	s.mu.Unlock()

	if err != nil {
		return
	}

	// A sweep only makes sense after a run that saw the source's current
	// inventory; otherwise an outage would deactivate everything.
	count, err := s.store.DeactivateStale(ctx, job.Source, s.staleAge)
	if err != nil {
		s.log.Error("staleness sweep failed", "source", job.Source, "error", err)
		return
	}
	if count > 0 {
		s.log.Info("deactivated stale listings", "source", job.Source, "count", count)
		if s.hub != nil {
			s.hub.Publish(events.MakeEvent("", events.TypeDeactivated, 1,
				events.DeactivatedPayload{Source: job.Source, Count: count}))
		}
	}
}

func (s *Scheduler) stateFor(source string) *sourceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[source]
	if !ok {
		st = &sourceState{}
		s.status[source] = st
	}
	return st
}

// Status reports the last-run bookkeeping for every known source.
func (s *Scheduler) Status() map[string]SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]SourceStatus, len(s.status))
	for name, st := range s.status {
		out[name] = SourceStatus{
			Source:    name,
			LastRunAt: timeString(st.lastRunAt),
			LastOkAt:  timeString(st.lastOkAt),
			LastError: st.lastErr,
			LastSaved: st.lastSaved,
		}
	}
	return out
}

type SourceStatus struct {
	Source    string `json:"source"`
	LastRunAt string `json:"last_run_at"`
	LastOkAt  string `json:"last_ok_at"`
	LastError string `json:"last_error,omitempty"`
	LastSaved int    `json:"last_saved"`
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
