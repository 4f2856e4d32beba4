package leadmodel

import (
	"strings"
	"time"
)

// DedupRecord is a many-to-one relation from a duplicate Lead to its
// canonical Lead, carrying the similarity score that produced the merge.
type DedupRecord struct {
	DuplicateLeadID string    `db:"duplicate_lead_id" json:"duplicate_lead_id"`
	CanonicalLeadID string    `db:"canonical_lead_id" json:"canonical_lead_id"`
	Similarity      float64   `db:"similarity" json:"similarity"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// FetchJobState is the FetchJob scheduler state machine (spec §4.9):
// pending -> admitted -> fetching -> (succeeded | failed_transient | failed_permanent)
// failed_transient re-enters pending with incremented attempt.
type FetchJobState string

const (
	JobPending         FetchJobState = "pending"
	JobAdmitted        FetchJobState = "admitted"
	JobFetching        FetchJobState = "fetching"
	JobSucceeded       FetchJobState = "succeeded"
	JobFailedTransient FetchJobState = "failed_transient"
	JobFailedPermanent FetchJobState = "failed_permanent"
)

// FetchJob is a unit of scheduler work; transient, persisted only when
// durability is enabled for in-flight recovery.
type FetchJob struct {
	SourceID    string
	ScheduledAt time.Time
	Attempt     int
	Deadline    time.Time
	State       FetchJobState
}

// CacheEntry is an enrichment lookup cache record (spec §3), evicted on
// TTL expiry with an LRU cap on total size (see internal/enricher.Cache).
type CacheEntry struct {
	Provider  string
	Key       string
	Value     string
	FetchedAt time.Time
	TTL       time.Duration
}

func (c CacheEntry) Expired(now time.Time) bool {
	if c.TTL <= 0 {
		return false
	}
	return now.After(c.FetchedAt.Add(c.TTL))
}

// normalizeToken lower-cases and collapses whitespace for dedup / sector
// keys; shared by leadmodel and store token-set matching.
func normalizeToken(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}
