package events

import (
	"encoding/json"
	"time"
)

// Event types published over the SSE stream.
const (
	TypeRunStarted  = "run_started"
	TypeRunFinished = "run_finished"
	TypeRunFailed   = "run_failed"
	TypeListingNew  = "listing_created"
	TypeListingSeen = "listing_updated"
	TypeDeactivated = "listings_deactivated"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RunPayload describes one source run start or finish.
type RunPayload struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched,omitempty"`
	Stored   int    `json:"stored,omitempty"`
	Created  int    `json:"created,omitempty"`
	Updated  int    `json:"updated,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// DeactivatedPayload reports a staleness sweep for one source.
type DeactivatedPayload struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

func MakeEvent(reqID, typ string, v int, data any) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
}

// Encode renders the event as the JSON line subscribers receive.
func (e Event) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// source digs the source name out of a run payload, for the hub's per-source
// replay bookkeeping.
func (e Event) source() string {
	var p struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return ""
	}
	return p.Source
}
