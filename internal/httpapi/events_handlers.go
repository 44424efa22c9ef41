package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"locascan-engine/internal/events"
)

type EventsHandler struct {
	Hub *events.Hub
}

// ServeSSE streams engine events. ?types=run_finished,listing_created narrows
// the stream to the named event types; without it the client gets everything.
// On connect the hub replays the latest run outcome per source, so a fresh
// dashboard knows where each platform stands before the next run.
func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "Streaming unsupported")
		return
	}

	filter := typeFilter(r.URL.Query().Get("types"))

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	reqID := RequestIDFrom(r.Context())
	writeSSE(w, events.MakeEvent(reqID, "ping", 1, nil).Encode())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			if !filter.allow(msg) {
				continue
			}
			writeSSE(w, msg)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, msg string) {
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
}

// eventTypes is the parsed ?types= selection; empty means no filtering.
type eventTypes map[string]bool

func typeFilter(csv string) eventTypes {
	f := make(eventTypes)
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			f[t] = true
		}
	}
	return f
}

func (f eventTypes) allow(msg string) bool {
	if len(f) == 0 {
		return true
	}
	var e struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(msg), &e); err != nil {
		return false
	}
	return f[e.Type]
}
