package classifier

import (
	"regexp"
	"strings"

	"leadpipe/internal/leadmodel"
)

// organizationSuffix matches a capitalized phrase ending in a common
// organization suffix (Inc, LLC, Hospital, University, ...). Lightweight
// and deterministic, per spec §4.5.1: "Implementation-free: the spec
// requires only that the output be a deterministic function of input
// text and the loaded keyword/pattern tables."
var organizationSuffix = regexp.MustCompile(
	`\b([A-Z][\w&.,-]*(?:\s+[A-Z][\w&.,-]*)*\s+(?:Inc|LLC|Corp|Corporation|Hospital|University|College|Partners|Group|Holdings|Systems|Foundation))\b`,
)

// properNounRun matches a run of two or more capitalized words, used as
// a coarse stand-in for location mentions (e.g. "Austin Texas").
var properNounRun = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)

// tagEntities performs the entity-tagging pass over a CandidateLead's
// title+description, writing into a fresh Entities value. Locations
// found here supplement, never replace, the extractor's
// PreliminaryLocation field.
func tagEntities(candidate leadmodel.CandidateLead) leadmodel.Entities {
	text := candidate.Title + " " + candidate.Description

	var e leadmodel.Entities
	seen := make(map[string]bool)
	for _, m := range organizationSuffix.FindAllStringSubmatch(text, -1) {
		org := strings.TrimSpace(m[1])
		if !seen[org] {
			seen[org] = true
			e.Organizations = append(e.Organizations, org)
		}
	}

	locSeen := make(map[string]bool)
	for _, m := range properNounRun.FindAllStringSubmatch(text, -1) {
		loc := strings.TrimSpace(m[1])
		if seen[loc] || locSeen[loc] {
			continue
		}
		locSeen[loc] = true
		e.Locations = append(e.Locations, loc)
	}

	return e
}
