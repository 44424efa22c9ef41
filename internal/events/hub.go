package events

import (
	"sort"
	"sync"
)

const clientBuffer = 16

// Hub fans events out to SSE subscribers. It remembers the latest run
// outcome per source and replays those on subscribe, so a dashboard that
// connects between scheduled runs still sees where every platform stands.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
	lastRun map[string]string
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan string]struct{}),
		lastRun: make(map[string]string),
	}
}

// Subscribe registers a client channel. The latest run event per source is
// queued onto it before any live event arrives.
func (h *Hub) Subscribe() chan string {
	ch := make(chan string, clientBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	sources := make([]string, 0, len(h.lastRun))
	for s := range h.lastRun {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		select {
		case ch <- h.lastRun[s]:
		default:
		}
	}

	h.clients[ch] = struct{}{}
	return ch
}

func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Publish broadcasts the event to every subscriber, dropping it for clients
// whose buffer is full. A run outcome also replaces the replay snapshot for
// its source.
func (h *Hub) Publish(e Event) {
	encoded := e.Encode()

	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Type {
	case TypeRunFinished, TypeRunFailed:
		if src := e.source(); src != "" {
			h.lastRun[src] = encoded
		}
	}

	for ch := range h.clients {
		select {
		case ch <- encoded:
		default:
			// drop if slow
		}
	}
}
