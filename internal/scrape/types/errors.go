package types

import (
	"fmt"
	"strings"
)

// FetchError means a source's network/HTTP fetch failed after retries were
// exhausted. It is recoverable: the manager skips that source's run.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means a fragment no longer matches the markup the extractor
// expects. The fragment is skipped, the batch continues.
type ParseError struct {
	Source string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse fragment: %s", e.Source, e.Reason)
}

// PersistenceError means one record failed to write. The record is skipped,
// the rest of the batch continues.
type PersistenceError struct {
	Source   string
	SourceID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persist %s: %v", e.Source, e.SourceID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UnknownSourceError means the caller named a source that is not in the
// registry. Surfaced to the API as a client error.
type UnknownSourceError struct {
	Name  string
	Known []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}
