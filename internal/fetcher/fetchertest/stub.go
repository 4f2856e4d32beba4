// Package fetchertest provides a deterministic fetcher.Transport stub for
// tests in downstream packages (extractor, orchestrator) that need a
// fetch result without a network call.
package fetchertest

import (
	"context"
	"sync"

	"leadpipe/internal/leadmodel"
)

// StubTransport returns a scripted sequence of results per source, one
// result consumed per call; the last result repeats once the sequence is
// exhausted. Safe for concurrent use.
type StubTransport struct {
	mu      sync.Mutex
	results map[string][]Result
	calls   map[string]int
}

// Result is one scripted Fetch outcome.
type Result struct {
	Payload *leadmodel.RawPayload
	Err     *leadmodel.FetchError
}

func New() *StubTransport {
	return &StubTransport{results: make(map[string][]Result), calls: make(map[string]int)}
}

// Script registers the ordered results returned for sourceID.
func (s *StubTransport) Script(sourceID string, results ...Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sourceID] = results
}

func (s *StubTransport) Fetch(_ context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.results[source.ID]
	if len(seq) == 0 {
		return &leadmodel.RawPayload{SourceID: source.ID}, nil
	}
	idx := s.calls[source.ID]
	if idx >= len(seq) {
		idx = len(seq) - 1
	}
	s.calls[source.ID] = idx + 1
	r := seq[idx]
	return r.Payload, r.Err
}

// Calls reports how many times Fetch was invoked for sourceID.
func (s *StubTransport) Calls(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[sourceID]
}
