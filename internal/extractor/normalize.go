package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"leadpipe/internal/leadmodel"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the result, the extractor-side counterpart of the teacher's
// content-cleaning policy.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// resolveURL resolves ref against base, returning ref unchanged if either
// fails to parse or ref is already absolute.
func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

var moneySuffixMultiplier = map[string]float64{
	"k":        1_000,
	"thousand": 1_000,
	"m":        1_000_000,
	"mm":       1_000_000,
	"million":  1_000_000,
	"b":        1_000_000_000,
	"billion":  1_000_000_000,
}

var moneyPattern = regexp.MustCompile(`(?i)([\$£€]?)\s*([\d,]+(?:\.\d+)?)\s*(thousand|million|billion|k|mm|m|b)?`)

// ParseMoney best-effort parses a money string, stripping currency
// symbols and thousands separators and expanding "M"/"million"-style
// suffixes, per spec §4.4. Returns ok=false when no numeric token is
// found.
func ParseMoney(s string) (amount float64, currency string, ok bool) {
	if s == "" {
		return 0, "", false
	}
	m := moneyPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, "", false
	}
	numeric := strings.ReplaceAll(m[2], ",", "")
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, "", false
	}
	if mult, hasSuffix := moneySuffixMultiplier[strings.ToLower(m[3])]; hasSuffix {
		v *= mult
	}
	cur := "USD"
	switch m[1] {
	case "£":
		cur = "GBP"
	case "€":
		cur = "EUR"
	}
	return v, cur, true
}

// ParseDateUTC best-effort parses a date string in any of a fixed set of
// common layouts and canonicalizes it to UTC (spec §4.4).
func ParseDateUTC(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	layouts := []string{
		time.RFC3339,
		time.RFC1123,
		time.RFC1123Z,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2 January 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeCandidate applies the shared post-extraction normalization
// pass common to every source type: whitespace, relative URL resolution.
// Date parsing happens before this, inline in each Handler, since the raw
// field names differ per source type. Money and size strings stay raw on
// the candidate and are parsed later by the classifier.
func normalizeCandidate(c *leadmodel.CandidateLead, source leadmodel.Source) {
	c.Title = normalizeWhitespace(c.Title)
	c.Description = normalizeWhitespace(c.Description)
	c.SourceID = source.ID
	if c.SourceURL != "" {
		c.SourceURL = resolveURL(source.OriginURL, c.SourceURL)
	}
}
