package classifier

import (
	"strings"

	"leadpipe/internal/leadmodel"
)

// classifyStage returns the first stage in cfg.StageKeywords whose
// keyword set matches, so that "the system prefers early-stage leads"
// (spec §4.5.4) as long as StageKeywords is ordered earliest-first by
// the caller/config. No match -> StageUnknown.
func classifyStage(candidate leadmodel.CandidateLead, cfg Config) leadmodel.ProjectStage {
	text := strings.ToLower(candidate.Title + " " + candidate.Description)
	for _, rule := range cfg.StageKeywords {
		for _, kw := range rule.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				return rule.Stage
			}
		}
	}
	return leadmodel.StageUnknown
}

// stageMatchStrength reports 1.0 if text matched any stage keyword, 0
// otherwise, used as the stage component of confidence scoring.
func stageMatchStrength(stage leadmodel.ProjectStage) float64 {
	if stage == leadmodel.StageUnknown {
		return 0
	}
	return 1
}
