package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

func TestFeedHandlerExtractsItems(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>  New Hospital   Wing  </title>
  <description>A 200-bed expansion</description>
  <link>/projects/hospital-wing</link>
  <guid>hosp-1</guid>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
</item>
</channel></rss>`)
	e := New(DefaultHandlers())
	source := leadmodel.Source{ID: "feed1", Type: leadmodel.SourceTypeFeed, OriginURL: "https://news.example.com/"}
	candidates, err := e.Extract(source, &leadmodel.RawPayload{Body: body})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "New Hospital Wing", candidates[0].Title)
	assert.Equal(t, "https://news.example.com/projects/hospital-wing", candidates[0].SourceURL)
	assert.Equal(t, "hosp-1", candidates[0].SourceRecordID)
	assert.Equal(t, "feed1", candidates[0].SourceID)
	assert.False(t, candidates[0].PublishedAt.IsZero())
}

func TestHTMLHandlerUsesDeclaredSelectors(t *testing.T) {
	body := []byte(`<html><body>
<article>
  <h2>Downtown Medical Center</h2>
  <p>New 400,000 sq ft medical campus.</p>
  <a href="/listing/1">details</a>
  <span class="loc">Austin, TX</span>
  <span class="val">$45 million</span>
</article>
</body></html>`)
	e := New(DefaultHandlers())
	source := leadmodel.Source{
		ID: "news1", Type: leadmodel.SourceTypeHTMLNews, OriginURL: "https://portal.example.com/listings",
		Params: map[string]string{
			"item_selector":     "article",
			"location_selector": ".loc",
			"value_selector":    ".val",
		},
	}
	candidates, err := e.Extract(source, &leadmodel.RawPayload{Body: body})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "Downtown Medical Center", c.Title)
	assert.Equal(t, "Austin, TX", c.PreliminaryLocation)
	assert.Equal(t, "$45 million", c.PreliminaryValue)
	assert.Equal(t, "https://portal.example.com/listing/1", c.SourceURL)
}

func TestJSONHandlerWalksRecordsPath(t *testing.T) {
	body := []byte(`{"results":[{"id":"r1","title":"New School Campus","url":"/r/1","location":"Denver, CO","value":"12.5M","published_at":"2024-03-01"}]}`)
	e := New(DefaultHandlers())
	source := leadmodel.Source{ID: "api1", Type: leadmodel.SourceTypeJSONAPI, OriginURL: "https://api.example.com"}
	candidates, err := e.Extract(source, &leadmodel.RawPayload{Body: body})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, "New School Campus", c.Title)
	assert.Equal(t, "r1", c.SourceRecordID)
	assert.Equal(t, "https://api.example.com/r/1", c.SourceURL)
	assert.Equal(t, 2024, c.PublishedAt.Year())
}

func TestDocumentHandlerExtractsLinks(t *testing.T) {
	body := []byte(`<li><a href="/bids/001.pdf">Energy Plant Expansion Notice</a></li>`)
	e := New(DefaultHandlers())
	source := leadmodel.Source{ID: "doc1", Type: leadmodel.SourceTypeDocumentAPI, OriginURL: "https://bids.example.gov"}
	candidates, err := e.Extract(source, &leadmodel.RawPayload{Body: body})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://bids.example.gov/bids/001.pdf", candidates[0].SourceURL)
}

func TestParseMoneyHandlesSuffixesAndSymbols(t *testing.T) {
	cases := []struct {
		in       string
		expected float64
		currency string
	}{
		{"$45 million", 45_000_000, "USD"},
		{"£2.3M", 2_300_000, "GBP"},
		{"1,250,000", 1_250_000, "USD"},
		{"€500k", 500_000, "EUR"},
	}
	for _, tc := range cases {
		v, cur, ok := ParseMoney(tc.in)
		require.True(t, ok, tc.in)
		assert.InDelta(t, tc.expected, v, 0.01, tc.in)
		assert.Equal(t, tc.currency, cur, tc.in)
	}
}

func TestParseMoneyRejectsNonNumeric(t *testing.T) {
	_, _, ok := ParseMoney("TBD")
	assert.False(t, ok)
}

func TestParseDateUTCAcceptsMultipleLayouts(t *testing.T) {
	t1, ok := ParseDateUTC("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, time.UTC, t1.Location())

	_, ok = ParseDateUTC("not a date")
	assert.False(t, ok)
}
