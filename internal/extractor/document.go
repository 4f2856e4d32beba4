package extractor

import (
	"regexp"

	"leadpipe/internal/leadmodel"
)

// DocumentHandler extracts candidate document links from a document-api
// listing payload using the regex pattern declared in
// Source.Params["record_url_pattern"] (spec §4.4: "regex patterns for
// document text"). Each match yields one CandidateLead whose title is the
// nearest following text node, if any, and whose SourceURL is the
// matched link.
type DocumentHandler struct{}

var defaultTitleHint = regexp.MustCompile(`>([^<]{3,200})<`)

func (DocumentHandler) Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error) {
	pattern := source.Params["record_url_pattern"]
	if pattern == "" {
		pattern = `href="([^"]+\.pdf)"`
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	body := string(payload.Body)
	matches := re.FindAllStringSubmatchIndex(body, -1)

	candidates := make([]leadmodel.CandidateLead, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if len(m) < 4 || m[2] < 0 {
			continue
		}
		link := body[m[2]:m[3]]
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		c := leadmodel.CandidateLead{SourceURL: link, SourceRecordID: link, RawFields: map[string]string{}}
		lookahead := body[m[1]:min(len(body), m[1]+300)]
		if titleMatch := defaultTitleHint.FindStringSubmatch(lookahead); titleMatch != nil {
			c.Title = titleMatch[1]
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
