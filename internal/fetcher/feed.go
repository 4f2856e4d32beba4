package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"leadpipe/internal/leadmodel"
)

// FeedTransport fetches RSS/Atom feeds with conditional GET. gofeed's own
// parser runs in the Extractor stage (C4), not here: the Fetcher's job is
// only to produce bytes, matching spec §4.3/§4.4's stage split.
type FeedTransport struct {
	Client *http.Client
}

func NewFeedTransport() *FeedTransport {
	return &FeedTransport{Client: &http.Client{}}
}

func (t *FeedTransport) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.OriginURL, nil)
	if err != nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: source.ID, Err: err}
	}
	if ims, ok := source.Params["if_modified_since"]; ok && ims != "" {
		req.Header.Set("If-Modified-Since", ims)
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, classifyNetErr(source.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNotModified, SourceID: source.ID, StatusCode: resp.StatusCode}
	}
	if fe := classifyStatus(source.ID, resp); fe != nil {
		return nil, fe
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: source.ID, Err: err}
	}
	return &leadmodel.RawPayload{
		SourceID:     source.ID,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		FetchedAt:    time.Now().UTC(),
		StatusCode:   resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
