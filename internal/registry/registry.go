// Package registry implements the Source Registry (C1): the set of
// configured Sources, indexed by id, exposing list_due/get/upsert/retire.
// The live set is held behind a copy-on-write snapshot, the way
// engine/configx/layers.go resolves layered configuration without
// locking readers against writers — updates are rare here too (spec
// §4.1/§5: "read-mostly; updates are rare and use copy-on-write").
package registry

import (
	"sort"
	"sync"
	"time"

	"leadpipe/internal/leadmodel"
)

type Registry struct {
	mu   sync.Mutex
	snap map[string]*leadmodel.Source
}

func New() *Registry {
	return &Registry{snap: make(map[string]*leadmodel.Source)}
}

// Upsert installs or replaces a Source definition. Retirement is a flag
// flip (Source.Active = false), never a removal, so in-flight jobs for a
// retired source drain naturally (spec §3).
func (r *Registry) Upsert(s leadmodel.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]*leadmodel.Source, len(r.snap)+1)
	for k, v := range r.snap {
		next[k] = v
	}
	cp := s
	next[s.ID] = &cp
	r.snap = next
}

// Retire flips the Active flag without deleting the Source, so its
// history is retained (per the Open Question resolution in DESIGN.md).
func (r *Registry) Retire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snap[id]
	if !ok {
		return
	}
	next := make(map[string]*leadmodel.Source, len(r.snap))
	for k, v := range r.snap {
		next[k] = v
	}
	cp := *cur
	cp.Active = false
	next[id] = &cp
	r.snap = next
}

func (r *Registry) Get(id string) (leadmodel.Source, bool) {
	r.mu.Lock()
	snap := r.snap
	r.mu.Unlock()
	s, ok := snap[id]
	if !ok {
		return leadmodel.Source{}, false
	}
	return *s, true
}

// RecordSuccess updates LastSuccessAt and resets the failure counter.
func (r *Registry) RecordSuccess(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snap[id]
	if !ok {
		return
	}
	next := make(map[string]*leadmodel.Source, len(r.snap))
	for k, v := range r.snap {
		next[k] = v
	}
	cp := *cur
	cp.LastSuccessAt = at
	cp.LastAttemptAt = at
	cp.ConsecutiveFails = 0
	next[id] = &cp
	r.snap = next
}

// RecordFailure increments the consecutive-failure counter and, on the
// configured threshold, retires the source into circuit-open state for
// `cooldown` (spec §7 "Permanent external ... source is paused").
func (r *Registry) RecordFailure(id string, at time.Time, threshold int, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.snap[id]
	if !ok {
		return
	}
	next := make(map[string]*leadmodel.Source, len(r.snap))
	for k, v := range r.snap {
		next[k] = v
	}
	cp := *cur
	cp.LastAttemptAt = at
	cp.ConsecutiveFails++
	if threshold > 0 && cp.ConsecutiveFails >= threshold {
		cp.CircuitOpenUntil = at.Add(cooldown)
	}
	next[id] = &cp
	r.snap = next
}

// ListDue returns Sources that are due to run at `now`, ordered
// longest-waiting-first (spec §4.1).
func (r *Registry) ListDue(now time.Time, minInterval time.Duration) []leadmodel.Source {
	r.mu.Lock()
	snap := r.snap
	r.mu.Unlock()

	due := make([]leadmodel.Source, 0, len(snap))
	for _, s := range snap {
		if s.Due(now, minInterval) {
			due = append(due, *s)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Waited(now) > due[j].Waited(now)
	})
	return due
}

// All returns every registered Source regardless of due-ness, for status
// reporting.
func (r *Registry) All() []leadmodel.Source {
	r.mu.Lock()
	snap := r.snap
	r.mu.Unlock()
	out := make([]leadmodel.Source, 0, len(snap))
	for _, s := range snap {
		out = append(out, *s)
	}
	return out
}
