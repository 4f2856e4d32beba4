package leadmodel

import "time"

// Entities holds lightweight NLP-extracted named entities from a
// CandidateLead's text. Deterministic over input text plus the loaded
// keyword/pattern tables (P5); see internal/classifier.
type Entities struct {
	Organizations []string
	Locations     []string
	People        []string
}

// CandidateLead is an Extractor output prior to classification. A
// Candidate with only Title and SourceURL populated is legal and enters
// the pipeline (spec §4.4).
type CandidateLead struct {
	Title             string
	Description       string
	SourceURL         string
	SourceID          string
	SourceRecordID    string
	PublishedAt       time.Time
	PreliminaryLocation string
	PreliminaryValue  string // best-effort money string, pre-parse
	PreliminarySize   string // best-effort area string, pre-parse
	Entities          Entities
	RawFields         map[string]string
}
