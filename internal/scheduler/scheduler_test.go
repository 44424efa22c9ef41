package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"locascan-engine/internal/domain"
	"locascan-engine/internal/scrape"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    int
	inFlight int32
	overlap  bool
	block    chan struct{} // when set, Run waits on it
	err      error
	panics   bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, criteria domain.SearchCriteria) (scrape.RunResult, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap = true
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panics {
		panic("adapter exploded")
	}
	if f.block != nil {
		<-f.block
	}
	return scrape.RunResult{Source: name, Stored: 2}, f.err
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStaleStore struct {
	mu     sync.Mutex
	sweeps []string
	count  int64
}

func (s *fakeStaleStore) DeactivateStale(ctx context.Context, source string, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps = append(s.sweeps, source)
	return s.count, nil
}

func (s *fakeStaleStore) sweepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sweeps)
}

func testJob() Job {
	return Job{Source: "alpha", Interval: time.Hour, Criteria: domain.SearchCriteria{City: "Rennes"}}
}

func TestRunOnceSweepsAfterSuccess(t *testing.T) {
	runner := &fakeRunner{}
	st := &fakeStaleStore{count: 3}
	s := New(runner, st, nil, testLogger(), 7*24*time.Hour)

	s.RunOnce(context.Background(), testJob())

	if runner.callCount() != 1 {
		t.Errorf("runner called %d times; want 1", runner.callCount())
	}
	if st.sweepCount() != 1 {
		t.Errorf("sweeps = %d; want 1", st.sweepCount())
	}

	status := s.Status()["alpha"]
	if status.LastError != "" || status.LastSaved != 2 || status.LastOkAt == "" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestRunOnceSkipsSweepAfterFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("upstream down")}
	st := &fakeStaleStore{}
	s := New(runner, st, nil, testLogger(), time.Hour)

	s.RunOnce(context.Background(), testJob())

	if st.sweepCount() != 0 {
		t.Errorf("sweep ran after a failed run")
	}
	if s.Status()["alpha"].LastError == "" {
		t.Error("failure not recorded in status")
	}
}

func TestOverlappingTriggerIsDropped(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	st := &fakeStaleStore{}
	s := New(runner, st, nil, testLogger(), time.Hour)

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background(), testJob())
		close(done)
	}()

	// Wait until the first run is inside the runner.
	for i := 0; i < 100 && runner.callCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}

	// Second trigger while the first is in flight must be dropped.
	s.RunOnce(context.Background(), testJob())
	if runner.callCount() != 1 {
		t.Errorf("runner called %d times; want 1 (overlap dropped)", runner.callCount())
	}

	close(runner.block)
	<-done

	if runner.overlap {
		t.Error("two runs of the same source overlapped")
	}
}

func TestPanicInRunDoesNotKillScheduler(t *testing.T) {
	runner := &fakeRunner{panics: true}
	st := &fakeStaleStore{}
	s := New(runner, st, nil, testLogger(), time.Hour)

	s.RunOnce(context.Background(), testJob())

	if s.Status()["alpha"].LastError == "" {
		t.Error("panic not recorded in status")
	}

	// The source must be runnable again afterwards.
	runner.panics = false
	s.RunOnce(context.Background(), testJob())
	if runner.callCount() != 2 {
		t.Errorf("runner called %d times; want 2", runner.callCount())
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	runner := &fakeRunner{}
	st := &fakeStaleStore{}
	s := New(runner, st, nil, testLogger(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, []Job{testJob()})

	// The immediate first run happens before any tick.
	for i := 0; i < 100 && runner.callCount() == 0; i++ {
		time.Sleep(time.Millisecond)
	}
	if runner.callCount() != 1 {
		t.Errorf("initial run count = %d; want 1", runner.callCount())
	}

	cancel()
	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loops did not drain after cancel")
	}
}
