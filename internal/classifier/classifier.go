// Package classifier implements the Classifier/Validator (C5):
// classify(CandidateLead) -> Lead | Rejection(reason). Keyword tables are
// data, config-injected the way engine/internal/business/policies loads
// BusinessPolicies structs, rather than compiled into the binary.
package classifier

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadpipe/internal/extractor"
	"leadpipe/internal/leadmodel"
)

// RejectionReason enumerates why a CandidateLead did not become a Lead.
type RejectionReason string

const (
	RejectOutOfRegion    RejectionReason = "out-of-region"
	RejectStale          RejectionReason = "stale"
	RejectLowConfidence  RejectionReason = "low-confidence"
	RejectMissingFields  RejectionReason = "missing-required-fields"
)

// Rejection carries the reason a CandidateLead was pruned, plus the
// source id and score for counting/logging (spec §4.5: "Rejections are
// logged with reason and counted per source").
type Rejection struct {
	Reason     RejectionReason
	SourceID   string
	Confidence float64
}

func (r *Rejection) Error() string { return string(r.Reason) }

// Config is the data the Classifier evaluates against: weighted keyword
// vocabularies per sector/stage, target regions, and scoring knobs. All
// fields are plain data so they can be loaded from YAML config and
// hot-reloaded without a code change (mirrors the teacher's
// PolicyConfigurationLoader.LoadFromMap shape).
type Config struct {
	SectorKeywords       map[leadmodel.MarketSector]map[string]float64
	SectorPriorityOrder  []leadmodel.MarketSector // tie-break order when scores are equal
	StageKeywords        []StageRule              // evaluated in order; first match wins ("earliest-matching stage")
	TargetRegions        []string                 // matched case-insensitively against CandidateLead.PreliminaryLocation
	ConfidenceThreshold  float64                  // default 0.7
	MaxAge               time.Duration            // default 14 days
	SourceTrustWeight    float64                  // added to confidence when Source.RegionTrusted
	FieldWeight          float64                  // weight per required field present
	SectorWeight         float64                  // weight for sector match strength
	StageWeight          float64                  // weight for stage match strength

	// Post-enrichment scoring knobs (spec §4.6: "quality, classification,
	// and priority scoring are computed after enrichment"). Kept on the
	// same Config as classification so both phases hot-reload together.
	QualityConfidenceWeight   float64                            // share of quality_score from confidence_score
	QualityCompletenessWeight float64                            // share of quality_score from filled optional fields
	QualityStageWeight        float64                            // share of quality_score from project-stage maturity
	StageMaturity             map[leadmodel.ProjectStage]float64 // 0-1 "how far along" per stage, timeline input to priority
	StageWinProbability       map[leadmodel.ProjectStage]float64 // baseline win_probability per stage
	CriticalValueThreshold    float64                            // estimated_value.Amount at/above which value scores 1.0
	HighValueThreshold        float64                            // estimated_value.Amount at/above which value scores 0.6
}

// StageRule names a ProjectStage and the keywords that indicate it.
type StageRule struct {
	Stage    leadmodel.ProjectStage
	Keywords []string
}

func (c *Config) applyDefaults() {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.7
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 14 * 24 * time.Hour
	}
	if c.FieldWeight <= 0 {
		c.FieldWeight = 0.25
	}
	if c.SectorWeight <= 0 {
		c.SectorWeight = 0.25
	}
	if c.StageWeight <= 0 {
		c.StageWeight = 0.2
	}
	if c.SourceTrustWeight <= 0 {
		c.SourceTrustWeight = 0.1
	}
	if c.QualityConfidenceWeight <= 0 {
		c.QualityConfidenceWeight = 0.5
	}
	if c.QualityCompletenessWeight <= 0 {
		c.QualityCompletenessWeight = 0.3
	}
	if c.QualityStageWeight <= 0 {
		c.QualityStageWeight = 0.2
	}
	if c.StageMaturity == nil {
		c.StageMaturity = defaultStageMaturity
	}
	if c.StageWinProbability == nil {
		c.StageWinProbability = defaultStageWinProbability
	}
	if c.CriticalValueThreshold <= 0 {
		c.CriticalValueThreshold = 5_000_000
	}
	if c.HighValueThreshold <= 0 {
		c.HighValueThreshold = 1_000_000
	}
}

// Classifier evaluates CandidateLeads against a hot-swappable Config,
// the same copy-on-write-under-RWMutex shape as the teacher's
// PolicyManager.
type Classifier struct {
	mu  sync.RWMutex
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Classifier {
	cfg.applyDefaults()
	return &Classifier{cfg: cfg, now: time.Now}
}

// Reconfigure swaps the active Config atomically, for fsnotify-triggered
// hot reload of keyword tables.
func (c *Classifier) Reconfigure(cfg Config) {
	cfg.applyDefaults()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

func (c *Classifier) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Classify evaluates one CandidateLead, returning either a new Lead in
// leadmodel.StatusProcessing (about to be validated by the caller
// once persisted) or a Rejection.
func (c *Classifier) Classify(candidate leadmodel.CandidateLead, source leadmodel.Source) (*leadmodel.Lead, *Rejection) {
	cfg := c.config()

	entities := tagEntities(candidate)

	sector, sectorScore := classifySector(candidate, cfg)
	stage := classifyStage(candidate, cfg)
	location := candidate.PreliminaryLocation

	if !source.RegionTrusted && !regionAllowed(location, cfg.TargetRegions) {
		return nil, &Rejection{Reason: RejectOutOfRegion, SourceID: source.ID}
	}

	if !candidate.PublishedAt.IsZero() && !source.Historical {
		age := c.now().Sub(candidate.PublishedAt)
		if age > cfg.MaxAge {
			return nil, &Rejection{Reason: RejectStale, SourceID: source.ID}
		}
	}

	confidence := confidenceScore(candidate, sectorScore, stage, source, cfg)
	if confidence < cfg.ConfidenceThreshold {
		return nil, &Rejection{Reason: RejectLowConfidence, SourceID: source.ID, Confidence: confidence}
	}

	value, size := parsePreliminary(candidate)

	lead := &leadmodel.Lead{
		LeadID:           uuid.NewString(),
		SourceID:         source.ID,
		SourceURL:        candidate.SourceURL,
		SourceRecordID:   candidate.SourceRecordID,
		Title:            candidate.Title,
		Description:      candidate.Description,
		MarketSector:     sector,
		Location:         leadmodel.Location{City: location},
		ProjectStage:     stage,
		EstimatedValue:   value,
		EstimatedSize:    size,
		ConfidenceScore:  confidence,
		// QualityScore/Priority/WinProbability are left at their zero
		// value here: spec §4.6 computes them after enrichment, once
		// company/contact fields are filled in. See Classifier.Score.
		Status:           leadmodel.StatusProcessing,
		FirstSeenAt:      c.now(),
		LastUpdatedAt:    c.now(),
		ExportRecordIDs:  map[string]string{},
	}
	lead.Notes = entitySummary(entities)
	return lead, nil
}

func regionAllowed(location string, regions []string) bool {
	if len(regions) == 0 {
		return true
	}
	loc := strings.ToLower(location)
	if loc == "" {
		return false
	}
	for _, r := range regions {
		if strings.Contains(loc, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

func parsePreliminary(candidate leadmodel.CandidateLead) (*leadmodel.Money, *leadmodel.Area) {
	var value *leadmodel.Money
	if amount, currency, ok := extractor.ParseMoney(candidate.PreliminaryValue); ok {
		value = &leadmodel.Money{Amount: amount, Currency: currency}
	}
	var size *leadmodel.Area
	if amount, ok := parseArea(candidate.PreliminarySize); ok {
		size = &leadmodel.Area{SquareFeet: amount}
	}
	return value, size
}

func entitySummary(e leadmodel.Entities) string {
	var parts []string
	if len(e.Organizations) > 0 {
		parts = append(parts, "orgs: "+strings.Join(e.Organizations, ", "))
	}
	if len(e.People) > 0 {
		parts = append(parts, "people: "+strings.Join(e.People, ", "))
	}
	return strings.Join(parts, "; ")
}

// sortedSectors returns every sector to score in tie-break order:
// cfg.SectorPriorityOrder first, then any other sector that has keywords
// in a stable sorted order, so ties are deterministic even when unconfigured.
func sortedSectors(cfg Config) []leadmodel.MarketSector {
	listed := make(map[leadmodel.MarketSector]bool, len(cfg.SectorPriorityOrder))
	for _, s := range cfg.SectorPriorityOrder {
		listed[s] = true
	}
	rest := make([]leadmodel.MarketSector, 0, len(cfg.SectorKeywords))
	for s := range cfg.SectorKeywords {
		if !listed[s] {
			rest = append(rest, s)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(append([]leadmodel.MarketSector{}, cfg.SectorPriorityOrder...), rest...)
}
