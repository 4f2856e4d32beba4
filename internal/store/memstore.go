package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadpipe/internal/leadmodel"
)

// MemStore is an in-memory LeadStore, used by orchestrator/exporter tests
// and as a standalone mode when no Postgres DSN is configured.
type MemStore struct {
	mu     sync.RWMutex
	leads  map[string]leadmodel.Lead
	dedups []leadmodel.DedupRecord

	cfg   Config
	locks sync.Map // per-canonical-key *sync.Mutex, spec §4.7
	now   func() time.Time
}

// NewMemStore builds an empty in-memory store.
func NewMemStore(cfg Config) *MemStore {
	cfg.applyDefaults()
	return &MemStore{
		leads: make(map[string]leadmodel.Lead),
		cfg:   cfg,
		now:   time.Now,
	}
}

func (s *MemStore) Create(ctx context.Context, lead leadmodel.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.LeadID] = lead
	return nil
}

func (s *MemStore) Get(ctx context.Context, leadID string) (leadmodel.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return leadmodel.Lead{}, ErrNotFound
	}
	return lead, nil
}

func (s *MemStore) Update(ctx context.Context, lead leadmodel.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[lead.LeadID]; !ok {
		return ErrNotFound
	}
	s.leads[lead.LeadID] = lead
	return nil
}

func (s *MemStore) Delete(ctx context.Context, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[leadID]; !ok {
		return ErrNotFound
	}
	delete(s.leads, leadID)
	return nil
}

func (s *MemStore) RecordDedup(ctx context.Context, rec leadmodel.DedupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.dedups = append(s.dedups, rec)
	return nil
}

func (s *MemStore) FindNearDuplicate(ctx context.Context, candidate leadmodel.Lead) (*DuplicateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findNearDuplicateLocked(candidate)
}

// findNearDuplicateLocked assumes s.mu is already held (read or write).
func (s *MemStore) findNearDuplicateLocked(candidate leadmodel.Lead) (*DuplicateMatch, error) {
	// Tier 1: exact source_url match.
	if candidate.SourceURL != "" {
		for _, existing := range s.leads {
			if existing.SourceURL == candidate.SourceURL {
				return &DuplicateMatch{CanonicalLeadID: existing.LeadID, Similarity: 1}, nil
			}
		}
	}

	// Tier 2: exact source_record_id within the same source.
	if candidate.SourceRecordID != "" {
		for _, existing := range s.leads {
			if existing.SourceID == candidate.SourceID && existing.SourceRecordID == candidate.SourceRecordID {
				return &DuplicateMatch{CanonicalLeadID: existing.LeadID, Similarity: 1}, nil
			}
		}
	}

	// Tier 3: fuzzy (title, location) token-set similarity within the
	// lookback window.
	cutoff := s.now().Add(-s.cfg.LookbackWindow)
	cTitle, cLoc := candidate.NormalizedTitleLocation()

	var best *DuplicateMatch
	for _, existing := range s.leads {
		if existing.FirstSeenAt.Before(cutoff) {
			continue
		}
		eTitle, eLoc := existing.NormalizedTitleLocation()
		sim := titleLocationSimilarity(cTitle, cLoc, eTitle, eLoc)
		if sim >= s.cfg.SimilarityThreshold && (best == nil || sim > best.Similarity) {
			best = &DuplicateMatch{CanonicalLeadID: existing.LeadID, Similarity: sim}
		}
	}
	return best, nil
}

// Upsert implements spec §4.7's insert/merge/dedup-record rules, guarded
// by a per-canonical-key lock so a concurrent dedup-search-then-insert
// race can never create two Leads for the same candidate.
func (s *MemStore) Upsert(ctx context.Context, candidate leadmodel.Lead) (UpsertResult, error) {
	title, loc := candidate.NormalizedTitleLocation()
	lock := s.lockFor(title + "|" + loc)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	match, err := s.findNearDuplicateLocked(candidate)
	if err != nil {
		return UpsertResult{}, err
	}

	if match == nil {
		if candidate.FirstSeenAt.IsZero() {
			candidate.FirstSeenAt = s.now().UTC()
		}
		candidate.LastUpdatedAt = s.now().UTC()
		candidate.Status = leadmodel.StatusNew
		s.leads[candidate.LeadID] = candidate
		return UpsertResult{Lead: candidate, Created: true}, nil
	}

	existing := s.leads[match.CanonicalLeadID]
	s.dedups = append(s.dedups, leadmodel.DedupRecord{
		DuplicateLeadID: candidate.LeadID,
		CanonicalLeadID: existing.LeadID,
		Similarity:      match.Similarity,
		CreatedAt:       s.now().UTC(),
	})

	if isTerminal(existing.Status) {
		return UpsertResult{Lead: existing, Created: false, Duplicate: match}, nil
	}

	if statusRankLess(existing.Status, leadmodel.StatusEnriched) {
		mergeConservative(&existing, candidate)
		s.leads[existing.LeadID] = existing
	}
	return UpsertResult{Lead: existing, Created: false, Duplicate: match}, nil
}

// ListPendingExport returns up to limit Leads at status=enriched, ordered
// oldest-last-updated-first.
func (s *MemStore) ListPendingExport(ctx context.Context, limit int) ([]leadmodel.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]leadmodel.Lead, 0, limit)
	for _, lead := range s.leads {
		if lead.Status == leadmodel.StatusEnriched {
			out = append(out, lead)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdatedAt.Before(out[j].LastUpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) lockFor(key string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// statusRankLess reports whether status is strictly earlier than bound in
// the DAG order (spec §4.7: "existing status < enriched").
func statusRankLess(status, bound leadmodel.LeadStatus) bool {
	order := map[leadmodel.LeadStatus]int{
		leadmodel.StatusNew:        0,
		leadmodel.StatusProcessing: 1,
		leadmodel.StatusValidated:  2,
		leadmodel.StatusEnriched:   3,
		leadmodel.StatusExported:   4,
	}
	s, sok := order[status]
	b, bok := order[bound]
	if !sok || !bok {
		return false
	}
	return s < b
}
