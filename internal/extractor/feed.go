package extractor

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"

	"leadpipe/internal/leadmodel"
)

func joinComma(ss []string) string { return strings.Join(ss, ", ") }

// FeedHandler extracts one CandidateLead per feed item, grounded on
// gofeed's universal RSS/Atom/JSON-feed parser.
type FeedHandler struct{}

func (FeedHandler) Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error) {
	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, err
	}
	candidates := make([]leadmodel.CandidateLead, 0, len(feed.Items))
	for _, item := range feed.Items {
		c := leadmodel.CandidateLead{
			Title:       item.Title,
			Description: item.Description,
			SourceURL:   item.Link,
			RawFields:   map[string]string{},
		}
		if item.GUID != "" {
			c.SourceRecordID = item.GUID
		} else {
			c.SourceRecordID = item.Link
		}
		if item.PublishedParsed != nil {
			c.PublishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			c.PublishedAt = item.UpdatedParsed.UTC()
		}
		if item.Content != "" {
			if c.Description == "" {
				c.Description = item.Content
			}
			c.RawFields["content"] = item.Content
		}
		if len(item.Categories) > 0 {
			c.RawFields["categories"] = joinComma(item.Categories)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
