package extractor

import (
	"github.com/tidwall/gjson"

	"leadpipe/internal/leadmodel"
)

// JSONHandler extracts candidates from a json-api payload using declarative
// gjson field paths carried in Source.Params (spec §4.4: "field paths for
// JSON"). records_path selects the array of record objects; the other
// *_field params are gjson paths relative to each record.
//
// Recognized params:
//
//	records_path      gjson path to the array of records (default "results")
//	id_field          record id used as SourceRecordID
//	title_field       record title
//	description_field record description
//	url_field         record detail URL
//	location_field    preliminary location
//	value_field       preliminary value string
//	size_field        preliminary size string
//	date_field        publication date string
type JSONHandler struct{}

func (JSONHandler) Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error) {
	if !gjson.ValidBytes(payload.Body) {
		return nil, errInvalidJSON
	}
	root := gjson.ParseBytes(payload.Body)

	recordsPath := source.Params["records_path"]
	if recordsPath == "" {
		recordsPath = "results"
	}
	records := root.Get(recordsPath)
	if !records.Exists() {
		records = root
	}

	var candidates []leadmodel.CandidateLead
	records.ForEach(func(_, record gjson.Result) bool {
		c := leadmodel.CandidateLead{RawFields: map[string]string{}}
		c.Title = field(record, source.Params["title_field"], "title")
		c.Description = field(record, source.Params["description_field"], "description")
		c.SourceURL = field(record, source.Params["url_field"], "url")
		c.SourceRecordID = field(record, source.Params["id_field"], "id")
		c.PreliminaryLocation = field(record, source.Params["location_field"], "location")
		c.PreliminaryValue = field(record, source.Params["value_field"], "value")
		c.PreliminarySize = field(record, source.Params["size_field"], "size")

		if dateStr := field(record, source.Params["date_field"], "published_at"); dateStr != "" {
			if t, ok := ParseDateUTC(dateStr); ok {
				c.PublishedAt = t
			}
			c.RawFields["raw_date"] = dateStr
		}
		if c.Title == "" && c.SourceURL == "" {
			return true
		}
		candidates = append(candidates, c)
		return true
	})
	return candidates, nil
}

func field(record gjson.Result, path, fallback string) string {
	if path == "" {
		path = fallback
	}
	return record.Get(path).String()
}

type invalidJSONError string

func (e invalidJSONError) Error() string { return string(e) }

const errInvalidJSON = invalidJSONError("extractor: payload is not valid JSON")
