// Package store persists Leads and implements the dedup contract of
// spec.md §4.7: find_near_duplicate and a conservative upsert, both
// transactional at the granularity of a single Lead.
package store

import (
	"context"
	"errors"
	"time"

	"leadpipe/internal/leadmodel"
)

// ErrNotFound is returned by Get when no Lead exists for the given id.
var ErrNotFound = errors.New("store: lead not found")

// Config controls the fuzzy-dedup pass of FindNearDuplicate.
type Config struct {
	// LookbackWindow bounds how far back candidates are considered for
	// fuzzy matching (spec §4.7: "configurable look-back window, default
	// 30 days").
	LookbackWindow time.Duration
	// SimilarityThreshold is the minimum token-set similarity ratio for a
	// fuzzy match to count as a duplicate (spec default 0.85).
	SimilarityThreshold float64
}

func (c *Config) applyDefaults() {
	if c.LookbackWindow <= 0 {
		c.LookbackWindow = 30 * 24 * time.Hour
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.85
	}
}

// DuplicateMatch is the result of a successful FindNearDuplicate call.
type DuplicateMatch struct {
	CanonicalLeadID string
	Similarity      float64
}

// UpsertResult reports what Upsert actually did.
type UpsertResult struct {
	Lead      leadmodel.Lead
	Created   bool
	Duplicate *DuplicateMatch
}

// LeadStore is the persistence contract of spec.md §4.7: CRUD over Leads
// plus find_near_duplicate and upsert. Implementations (Postgres, in-memory)
// must serialize mutations per Lead and hold a short per-canonical lock
// around the dedup-search-then-upsert sequence (spec: "cross-Lead
// operations ... hold a short per-canonical lock to prevent duplicate
// inserts under concurrency").
type LeadStore interface {
	Create(ctx context.Context, lead leadmodel.Lead) error
	Get(ctx context.Context, leadID string) (leadmodel.Lead, error)
	Update(ctx context.Context, lead leadmodel.Lead) error
	Delete(ctx context.Context, leadID string) error

	// FindNearDuplicate runs the three-tier match procedure of spec §4.7:
	// exact source_url, then exact source_record_id-within-source, then
	// fuzzy (title, location) token-set similarity within the lookback
	// window. Returns (nil, nil) when no duplicate is found.
	FindNearDuplicate(ctx context.Context, candidate leadmodel.Lead) (*DuplicateMatch, error)

	// Upsert runs find_near_duplicate and applies the merge/insert rules
	// of spec §4.7, guarded by the store's per-canonical lock.
	Upsert(ctx context.Context, candidate leadmodel.Lead) (UpsertResult, error)

	RecordDedup(ctx context.Context, rec leadmodel.DedupRecord) error

	// ListPendingExport returns up to limit Leads at status=enriched,
	// oldest first, for the export loop to drain. Grounded on the CRM
	// repo's LeadRepository.List (a plain filtered scan alongside the
	// single-row CRUD methods).
	ListPendingExport(ctx context.Context, limit int) ([]leadmodel.Lead, error)
}

// isTerminal reports whether a Lead's status is terminal for dedup
// purposes (spec §4.7 item 3: exported/archived/rejected never merge,
// they only ever gain a DedupRecord pointing at the canonical).
func isTerminal(status leadmodel.LeadStatus) bool {
	return status == leadmodel.StatusExported || status == leadmodel.StatusArchived || status == leadmodel.StatusRejected
}

// mergeConservative fills gap fields of existing from candidate without
// overwriting a set value (same rule as internal/enricher's merge, spec
// §4.7: "merge new non-null fields into existing"). Two exceptions: an
// unknown ProjectStage counts as a gap, and ConfidenceScore keeps the
// higher of the two scores.
func mergeConservative(existing *leadmodel.Lead, candidate leadmodel.Lead) {
	if existing.Title == "" {
		existing.Title = candidate.Title
	}
	if existing.Description == "" {
		existing.Description = candidate.Description
	}
	if existing.MarketSector == "" {
		existing.MarketSector = candidate.MarketSector
	}
	if existing.Location.City == "" && existing.Location.State == "" {
		existing.Location = candidate.Location
	}
	if existing.ProjectStage == "" || existing.ProjectStage == leadmodel.StageUnknown {
		existing.ProjectStage = candidate.ProjectStage
	}
	if existing.EstimatedValue == nil {
		existing.EstimatedValue = candidate.EstimatedValue
	}
	if existing.EstimatedSize == nil {
		existing.EstimatedSize = candidate.EstimatedSize
	}
	if existing.Company == nil {
		existing.Company = candidate.Company
	}
	if len(existing.Contacts) == 0 {
		existing.Contacts = candidate.Contacts
	}
	if existing.ConfidenceScore < candidate.ConfidenceScore {
		existing.ConfidenceScore = candidate.ConfidenceScore
	}
	if existing.Notes == "" {
		existing.Notes = candidate.Notes
	}
	existing.LastUpdatedAt = time.Now().UTC()
}
