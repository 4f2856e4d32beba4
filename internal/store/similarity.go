package store

import "strings"

// tokenSetSimilarity computes a fuzzywuzzy-style token-set containment
// ratio between two strings: |intersection| / min(|A|, |B|) of their
// whitespace token sets. Spec §4.7 requires a token-SET ratio rather
// than edit distance, which rules out a levenshtein-family library (the
// pack's only fuzzy-match dependency, e.g. github.com/agnivade/levenshtein,
// computes character-level edit distance, not set overlap) — this is
// documented as a stdlib-justified exception in DESIGN.md. Containment
// rather than Jaccard/union is deliberate: a shorter title that is
// entirely contained in a longer one ("Riverside Hospital Expansion" in
// "Riverside Hospital Expansion Project") is the same project with a
// trailing word dropped or added by a source, and must score 1.0, not
// be diluted by the union's denominator.
func tokenSetSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(intersection) / float64(smaller)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// titleLocationSimilarity combines title and location similarity, weighting
// title higher since location alone (e.g. two leads both in "Austin TX")
// should never alone cross the duplicate threshold.
func titleLocationSimilarity(aTitle, aLoc, bTitle, bLoc string) float64 {
	titleSim := tokenSetSimilarity(aTitle, bTitle)
	locSim := tokenSetSimilarity(aLoc, bLoc)
	return 0.75*titleSim + 0.25*locSim
}
