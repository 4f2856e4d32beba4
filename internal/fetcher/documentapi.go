package fetcher

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"time"

	"leadpipe/internal/leadmodel"
)

// DocumentAPITransport fetches a listing endpoint that links to bid
// documents/notices (permit filings, tender PDFs) rather than returning
// records directly. Params["record_url_pattern"] is a regexp used by the
// Extractor to pick out document links from the body; the transport
// itself only needs to know how to authenticate and retrieve that body.
type DocumentAPITransport struct {
	Client *http.Client
}

func NewDocumentAPITransport() *DocumentAPITransport {
	return &DocumentAPITransport{Client: &http.Client{}}
}

func (t *DocumentAPITransport) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	if pattern := source.Params["record_url_pattern"]; pattern != "" {
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: source.ID, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.OriginURL, nil)
	if err != nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: source.ID, Err: err}
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, classifyNetErr(source.ID, err)
	}
	defer resp.Body.Close()

	if fe := classifyStatus(source.ID, resp); fe != nil {
		return nil, fe
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: source.ID, Err: err}
	}
	return &leadmodel.RawPayload{
		SourceID:    source.ID,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now().UTC(),
		StatusCode:  resp.StatusCode,
		ETag:        resp.Header.Get("ETag"),
	}, nil
}
