package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"leadpipe/internal/leadmodel"
)

// HTMLHandler extracts candidates from rendered/crawled HTML using
// declarative CSS selectors carried in Source.Params, never hardcoded
// per-portal logic (spec §4.4: "selectors for HTML"). Shared by the
// html-news and web-portal source types, which differ only in how the
// Fetcher obtained the markup.
//
// Recognized params:
//
//	item_selector        selects each repeating project/article block
//	title_selector       relative to item, element text is the title
//	description_selector relative to item, element text is the description
//	link_selector        relative to item, href attribute is the source URL
//	date_selector        relative to item, element text is parsed as a date
//	location_selector    relative to item, element text is the preliminary location
//	value_selector       relative to item, element text is the preliminary value
type HTMLHandler struct{}

func (HTMLHandler) Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload.Body))
	if err != nil {
		return nil, err
	}

	itemSelector := source.Params["item_selector"]
	if itemSelector == "" {
		itemSelector = "article"
	}

	var candidates []leadmodel.CandidateLead
	doc.Find(itemSelector).Each(func(_ int, item *goquery.Selection) {
		c := leadmodel.CandidateLead{RawFields: map[string]string{}}

		c.Title = selText(item, source.Params["title_selector"], "h1, h2, h3")
		c.Description = selText(item, source.Params["description_selector"], "p")

		if sel := source.Params["link_selector"]; sel != "" {
			if href, ok := item.Find(sel).Attr("href"); ok {
				c.SourceURL = href
			}
		} else if href, ok := item.Find("a").Attr("href"); ok {
			c.SourceURL = href
		}

		if sel := source.Params["date_selector"]; sel != "" {
			if dateText := strings.TrimSpace(item.Find(sel).Text()); dateText != "" {
				if t, ok := ParseDateUTC(dateText); ok {
					c.PublishedAt = t
				}
				c.RawFields["raw_date"] = dateText
			}
		}
		if sel := source.Params["location_selector"]; sel != "" {
			c.PreliminaryLocation = normalizeWhitespace(item.Find(sel).Text())
		}
		if sel := source.Params["value_selector"]; sel != "" {
			c.PreliminaryValue = normalizeWhitespace(item.Find(sel).Text())
		}

		if c.Title == "" && c.SourceURL == "" {
			return
		}
		candidates = append(candidates, c)
	})
	return candidates, nil
}

// selText returns the text of the first element matching selector
// (relative to scope), falling back to fallbackSelector when selector is
// empty.
func selText(scope *goquery.Selection, selector, fallbackSelector string) string {
	if selector != "" {
		return strings.TrimSpace(scope.Find(selector).First().Text())
	}
	return strings.TrimSpace(scope.Find(fallbackSelector).First().Text())
}
