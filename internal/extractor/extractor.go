// Package extractor implements the Extractor (C4): extract(Source,
// RawPayload) -> []CandidateLead, polymorphic over Source.Type the same
// way the Fetcher dispatches Transports (internal/fetcher), grounded on
// engine/business/processor's content-cleaning policy shape.
package extractor

import (
	"leadpipe/internal/leadmodel"
)

// Handler turns one RawPayload into zero or more CandidateLeads. A
// payload often yields zero or many candidates (spec §4.4).
type Handler interface {
	Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error)
}

// Extractor dispatches to the Handler registered for a Source.Type.
type Extractor struct {
	handlers map[leadmodel.SourceType]Handler
}

func New(handlers map[leadmodel.SourceType]Handler) *Extractor {
	return &Extractor{handlers: handlers}
}

func (e *Extractor) Extract(source leadmodel.Source, payload *leadmodel.RawPayload) ([]leadmodel.CandidateLead, error) {
	h, ok := e.handlers[source.Type]
	if !ok {
		return nil, unsupportedTypeError(source.Type)
	}
	candidates, err := h.Extract(source, payload)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		normalizeCandidate(&candidates[i], source)
	}
	return candidates, nil
}

type unsupportedType string

func unsupportedTypeError(t leadmodel.SourceType) error { return unsupportedType(t) }
func (u unsupportedType) Error() string                 { return "extractor: unsupported source type: " + string(u) }

// DefaultHandlers builds the closed dispatch table of production
// extraction handlers for every SourceType.
func DefaultHandlers() map[leadmodel.SourceType]Handler {
	return map[leadmodel.SourceType]Handler{
		leadmodel.SourceTypeFeed:        FeedHandler{},
		leadmodel.SourceTypeHTMLNews:    HTMLHandler{},
		leadmodel.SourceTypeWebPortal:   HTMLHandler{},
		leadmodel.SourceTypeJSONAPI:     JSONHandler{},
		leadmodel.SourceTypeDocumentAPI: DocumentHandler{},
	}
}
