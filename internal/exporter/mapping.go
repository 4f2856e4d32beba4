package exporter

import "leadpipe/internal/leadmodel"

// FieldMapping is the deterministic internal-field -> CRM-property table
// of spec §4.8 item 4, externalized so custom CRM property ids are never
// hard-coded into the Exporter itself.
type FieldMapping struct {
	SourceURLProperty  string
	ConfidenceProperty string
	QualityProperty    string
	SectorProperty     string
	StageProperty      string
	PriorityProperty   string
}

func defaultFieldMapping() FieldMapping {
	return FieldMapping{
		SourceURLProperty:  "lead_source_url",
		ConfidenceProperty: "lead_confidence_score",
		QualityProperty:    "lead_quality_score",
		SectorProperty:     "lead_market_sector",
		StageProperty:      "lead_project_stage",
		PriorityProperty:   "lead_priority",
	}
}

// StatusStageMapping maps internal LeadStatus to the CRM's deal-stage
// identifier (spec §4.8 item 5), also externalized as configuration.
type StatusStageMapping map[leadmodel.LeadStatus]string

func defaultStatusStageMapping() StatusStageMapping {
	return StatusStageMapping{
		leadmodel.StatusNew:        "stage_identified",
		leadmodel.StatusProcessing: "stage_identified",
		leadmodel.StatusValidated:  "stage_qualifying",
		leadmodel.StatusEnriched:   "stage_qualified",
		leadmodel.StatusExported:   "stage_qualified",
	}
}

func (m StatusStageMapping) stageFor(status leadmodel.LeadStatus) string {
	if stage, ok := m[status]; ok {
		return stage
	}
	return "stage_identified"
}

func (f FieldMapping) propertiesFor(lead leadmodel.Lead) map[string]string {
	props := map[string]string{
		f.SourceURLProperty:  lead.SourceURL,
		f.ConfidenceProperty: formatScore(lead.ConfidenceScore),
		f.QualityProperty:    formatScore(lead.QualityScore),
		f.SectorProperty:     string(lead.MarketSector),
		f.StageProperty:      string(lead.ProjectStage),
		f.PriorityProperty:   string(lead.Priority),
	}
	return props
}
