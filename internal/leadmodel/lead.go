package leadmodel

import "time"

type MarketSector string

const (
	SectorHealthcare       MarketSector = "healthcare"
	SectorHigherEducation  MarketSector = "higher-education"
	SectorEnergy           MarketSector = "energy"
	SectorEntertainment    MarketSector = "entertainment"
	SectorCommercial       MarketSector = "commercial"
	SectorOther            MarketSector = "other"
)

type ProjectStage string

const (
	StageConceptual     ProjectStage = "conceptual"
	StagePlanning       ProjectStage = "planning"
	StageApproval       ProjectStage = "approval"
	StageFunding        ProjectStage = "funding"
	StageImplementation ProjectStage = "implementation"
	StageUnknown        ProjectStage = "unknown"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
	PriorityMinimal  Priority = "minimal"
)

// LeadStatus is the DAG-ordered status a Lead moves through monotonically
// (I2). Rejection and archival are terminal.
type LeadStatus string

const (
	StatusNew        LeadStatus = "new"
	StatusProcessing LeadStatus = "processing"
	StatusValidated  LeadStatus = "validated"
	StatusEnriched   LeadStatus = "enriched"
	StatusExported   LeadStatus = "exported"
	StatusArchived   LeadStatus = "archived"
	StatusRejected   LeadStatus = "rejected"
)

// statusRank gives the DAG position of a status for monotonicity checks
// (P1). Rejected/Archived are terminal and have no forward rank.
var statusRank = map[LeadStatus]int{
	StatusNew:        0,
	StatusProcessing: 1,
	StatusValidated:  2,
	StatusEnriched:   3,
	StatusExported:   4,
}

// CanTransition reports whether moving from `from` to `to` respects the
// monotonic DAG order (I2). Terminal statuses (rejected, archived) may be
// reached from any non-terminal status but never left.
func CanTransition(from, to LeadStatus) bool {
	if to == StatusRejected || to == StatusArchived {
		return from != StatusRejected && from != StatusArchived
	}
	fr, fok := statusRank[from]
	tr, tok := statusRank[to]
	if !fok || !tok {
		return false
	}
	return tr >= fr
}

type Location struct {
	City   string   `json:"city"`
	State  string   `json:"state"`
	County string   `json:"county,omitempty"`
	Lat    *float64 `json:"lat,omitempty"`
	Lng    *float64 `json:"lng,omitempty"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Area struct {
	SquareFeet float64 `json:"square_feet"`
}

type Company struct {
	Name       string `json:"name"`
	Domain     string `json:"domain,omitempty"`
	SizeBucket string `json:"size_bucket,omitempty"`
	HQLocation string `json:"hq_location,omitempty"`
}

type Contact struct {
	Name  string `json:"name"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Lead is the persisted entity produced by the pipeline.
type Lead struct {
	LeadID         string            `db:"lead_id" json:"lead_id"`
	SourceID       string            `db:"source_id" json:"source_id"`
	SourceURL      string            `db:"source_url" json:"source_url"`
	SourceRecordID string            `db:"source_record_id" json:"source_record_id,omitempty"`

	Title           string       `db:"title" json:"title"`
	Description     string       `db:"description" json:"description"`
	MarketSector    MarketSector `db:"market_sector" json:"market_sector"`
	Location        Location     `db:"-" json:"location"`
	ProjectStage    ProjectStage `db:"project_stage" json:"project_stage"`
	EstimatedValue  *Money       `db:"-" json:"estimated_value,omitempty"`
	EstimatedSize   *Area        `db:"-" json:"estimated_size,omitempty"`

	ConfidenceScore float64  `db:"confidence_score" json:"confidence_score"`
	QualityScore    float64  `db:"quality_score" json:"quality_score"`
	Priority        Priority `db:"priority" json:"priority"`
	WinProbability  float64  `db:"win_probability" json:"win_probability"`

	Company  *Company  `db:"-" json:"company,omitempty"`
	Contacts []Contact `db:"-" json:"contacts,omitempty"`

	Status           LeadStatus       `db:"status" json:"status"`
	ValidatedAt      time.Time        `db:"validated_at" json:"validated_at,omitempty"`
	EnrichedAt       time.Time        `db:"enriched_at" json:"enriched_at,omitempty"`
	ExportedAt       time.Time        `db:"exported_at" json:"exported_at,omitempty"`
	ArchivedAt       time.Time        `db:"archived_at" json:"archived_at,omitempty"`
	Notes            string           `db:"notes" json:"notes,omitempty"`
	ExportAttempts   int              `db:"export_attempts" json:"export_attempts"`
	ExportRecordIDs  map[string]string `db:"-" json:"export_record_ids,omitempty"`

	FirstSeenAt   time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastUpdatedAt time.Time `db:"last_updated_at" json:"last_updated_at"`
}

// MeetsValidatedInvariant checks I3: a Lead with status >= validated must
// have non-null sector, location, and confidence above the threshold.
func (l *Lead) MeetsValidatedInvariant(threshold float64) bool {
	if l.MarketSector == "" {
		return false
	}
	if l.Location.City == "" && l.Location.State == "" {
		return false
	}
	return l.ConfidenceScore >= threshold
}

// NormalizedTitleLocation returns the (title, location) pair used for I6 /
// fuzzy-dedup keying, lower-cased and whitespace-collapsed.
func (l *Lead) NormalizedTitleLocation() (string, string) {
	return normalizeToken(l.Title), normalizeToken(l.Location.City + " " + l.Location.State)
}
