package fetcher

import (
	"context"
	"time"

	"github.com/gocolly/colly/v2"

	"leadpipe/internal/leadmodel"
)

// HTMLNewsTransport fetches a single news/listing page through a colly
// collector, the way engine/internal/crawler/crawler.go drives its
// OnResponse/OnError callbacks, but scoped to one page per call instead of
// a full site crawl: the Extractor stage (C4), not the Fetcher, walks the
// DOM for CandidateLead fields.
type HTMLNewsTransport struct {
	UserAgent string
	Timeout   time.Duration
}

func NewHTMLNewsTransport(userAgent string, timeout time.Duration) *HTMLNewsTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTMLNewsTransport{UserAgent: userAgent, Timeout: timeout}
}

func (t *HTMLNewsTransport) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	c := colly.NewCollector()
	c.UserAgent = t.UserAgent
	c.SetRequestTimeout(t.Timeout)

	var (
		payload *leadmodel.RawPayload
		ferr    *leadmodel.FetchError
	)

	c.OnResponse(func(r *colly.Response) {
		if fe := classifyStatusCode(source.ID, r.StatusCode, r.Headers.Get("Retry-After")); fe != nil {
			ferr = fe
			return
		}
		payload = &leadmodel.RawPayload{
			SourceID:    source.ID,
			Body:        append([]byte(nil), r.Body...),
			ContentType: r.Headers.Get("Content-Type"),
			FetchedAt:   time.Now().UTC(),
			StatusCode:  r.StatusCode,
			ETag:        r.Headers.Get("ETag"),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			if fe := classifyStatusCode(source.ID, r.StatusCode, r.Headers.Get("Retry-After")); fe != nil {
				ferr = fe
				return
			}
		}
		ferr = classifyNetErr(source.ID, err)
	})

	done := make(chan struct{})
	go func() {
		_ = c.Visit(source.OriginURL)
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrTimeout, SourceID: source.ID, Err: ctx.Err()}
	}

	if ferr != nil {
		return nil, ferr
	}
	if payload == nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: source.ID, Err: errEmptyResponse}
	}
	return payload, nil
}

var errEmptyResponse = emptyResponseError{}

type emptyResponseError struct{}

func (emptyResponseError) Error() string { return "fetcher: no response captured" }
