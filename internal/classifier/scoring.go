package classifier

import "leadpipe/internal/leadmodel"

// defaultStageMaturity ranks how far a project has progressed toward a
// signed deal, used as the "timeline" input to priority (glossary:
// "Priority — bucketed ranking derived from value, timeline, and win
// probability"). Unknown sits above conceptual: an unclassified stage is
// not evidence of an early stage, just missing information.
var defaultStageMaturity = map[leadmodel.ProjectStage]float64{
	leadmodel.StageConceptual:     0.2,
	leadmodel.StagePlanning:       0.4,
	leadmodel.StageApproval:       0.6,
	leadmodel.StageFunding:        0.8,
	leadmodel.StageImplementation: 1.0,
	leadmodel.StageUnknown:        0.3,
}

// defaultStageWinProbability is the baseline win_probability contributed
// by project_stage before confidence/quality adjust it.
var defaultStageWinProbability = map[leadmodel.ProjectStage]float64{
	leadmodel.StageConceptual:     0.10,
	leadmodel.StagePlanning:       0.25,
	leadmodel.StageApproval:       0.45,
	leadmodel.StageFunding:        0.65,
	leadmodel.StageImplementation: 0.80,
	leadmodel.StageUnknown:        0.20,
}

// Score computes quality_score, win_probability, and priority as a pure
// function of the Lead's current fields and the active Config (spec I5:
// "quality_score is a pure function of the Lead's current field values
// and configuration; recomputation is idempotent"). Called after
// enrichment (spec §4.6) and again on every later enrichment-affecting
// update, never at classify time, since both quality and priority depend
// on completeness fields (company/contacts/value/size) enrichment fills.
func (c *Classifier) Score(lead leadmodel.Lead) leadmodel.Lead {
	cfg := c.config()
	return ScoreLead(lead, cfg)
}

// ScoreLead is the package-level pure function Score delegates to, kept
// free of the Classifier's mutex so it can also be unit-tested directly
// against literal Config values.
func ScoreLead(lead leadmodel.Lead, cfg Config) leadmodel.Lead {
	maturity := cfg.StageMaturity[lead.ProjectStage]
	completeness := completenessScore(lead)

	quality := cfg.QualityConfidenceWeight*lead.ConfidenceScore +
		cfg.QualityCompletenessWeight*completeness +
		cfg.QualityStageWeight*maturity
	lead.QualityScore = clamp01(quality) * 100

	baseline := cfg.StageWinProbability[lead.ProjectStage]
	winProb := 0.6*baseline + 0.25*lead.ConfidenceScore + 0.15*(lead.QualityScore/100)
	lead.WinProbability = clamp01(winProb)

	lead.Priority = priorityFor(valueScore(lead.EstimatedValue, cfg), maturity, lead.WinProbability)
	return lead
}

// completenessScore is the share of enrichment-fillable fields present:
// company, at least one contact, estimated value, estimated size.
func completenessScore(lead leadmodel.Lead) float64 {
	total := 4
	present := 0
	if lead.Company != nil {
		present++
	}
	if len(lead.Contacts) > 0 {
		present++
	}
	if lead.EstimatedValue != nil {
		present++
	}
	if lead.EstimatedSize != nil {
		present++
	}
	return float64(present) / float64(total)
}

// valueScore maps estimated_value against the configured thresholds to a
// [0,1] input for priority: at/above CriticalValueThreshold scores 1.0,
// at/above HighValueThreshold scores 0.6, below that scales linearly.
func valueScore(value *leadmodel.Money, cfg Config) float64 {
	if value == nil || value.Amount <= 0 {
		return 0
	}
	switch {
	case value.Amount >= cfg.CriticalValueThreshold:
		return 1.0
	case value.Amount >= cfg.HighValueThreshold:
		return 0.6
	default:
		return 0.6 * value.Amount / cfg.HighValueThreshold
	}
}

// priorityFor buckets the weighted blend of value, timeline (stage
// maturity), and win probability into spec §3's five-level enum.
func priorityFor(value, maturity, winProbability float64) leadmodel.Priority {
	score := 0.4*value + 0.3*maturity + 0.3*winProbability
	switch {
	case score >= 0.8:
		return leadmodel.PriorityCritical
	case score >= 0.6:
		return leadmodel.PriorityHigh
	case score >= 0.4:
		return leadmodel.PriorityMedium
	case score >= 0.2:
		return leadmodel.PriorityLow
	default:
		return leadmodel.PriorityMinimal
	}
}
