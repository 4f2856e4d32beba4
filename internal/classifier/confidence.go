package classifier

import (
	"leadpipe/internal/leadmodel"
)

// confidenceScore implements spec §4.5.5: a weighted sum of required-field
// presence, sector match strength, stage match strength, and source-trust
// weight, clamped to [0,1].
func confidenceScore(candidate leadmodel.CandidateLead, sectorScore float64, stage leadmodel.ProjectStage, source leadmodel.Source, cfg Config) float64 {
	requiredPresent := 0
	requiredTotal := 4
	if candidate.Title != "" {
		requiredPresent++
	}
	if candidate.Description != "" {
		requiredPresent++
	}
	if candidate.PreliminaryLocation != "" {
		requiredPresent++
	}
	if candidate.SourceURL != "" {
		requiredPresent++
	}
	fieldScore := float64(requiredPresent) / float64(requiredTotal)

	sectorStrength := clamp01(sectorScore)
	stageStrength := stageMatchStrength(stage)

	score := cfg.FieldWeight*fieldScore + cfg.SectorWeight*sectorStrength + cfg.StageWeight*stageStrength
	if source.RegionTrusted {
		score += cfg.SourceTrustWeight
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
