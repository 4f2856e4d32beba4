package classifier

import (
	"strings"

	"leadpipe/internal/leadmodel"
)

// classifySector scores every configured sector's keyword vocabulary
// against the candidate's title+description and returns the
// highest-scoring sector. Ties break on cfg.SectorPriorityOrder (or a
// stable default order if unset); zero score for every sector yields
// SectorOther (spec §4.5.2).
func classifySector(candidate leadmodel.CandidateLead, cfg Config) (leadmodel.MarketSector, float64) {
	text := strings.ToLower(candidate.Title + " " + candidate.Description)

	best := leadmodel.SectorOther
	bestScore := 0.0
	for _, sector := range sortedSectors(cfg) {
		keywords := cfg.SectorKeywords[sector]
		score := scoreKeywords(text, keywords)
		if score > bestScore {
			best = sector
			bestScore = score
		}
	}
	return best, bestScore
}

func scoreKeywords(text string, keywords map[string]float64) float64 {
	var total float64
	for kw, weight := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			total += weight
		}
	}
	return total
}
