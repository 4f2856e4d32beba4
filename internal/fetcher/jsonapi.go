package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"leadpipe/internal/leadmodel"
	"leadpipe/internal/secrets"
)

// JSONAPITransport issues authenticated requests against a JSON API
// source. Credentials are never embedded in Source config: the API key
// is fetched by name through a secrets.Resolver at request time (spec
// §6, "credential resolution through the secret-name indirection").
type JSONAPITransport struct {
	Client   *http.Client
	Resolver secrets.Resolver
}

func NewJSONAPITransport(resolver secrets.Resolver) *JSONAPITransport {
	return &JSONAPITransport{Client: &http.Client{}, Resolver: resolver}
}

func (t *JSONAPITransport) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.OriginURL, nil)
	if err != nil {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: source.ID, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	if source.CredentialRef != "" {
		token, rerr := t.Resolver.Resolve(source.CredentialRef)
		if rerr != nil {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrAuth, SourceID: source.ID, Err: rerr}
		}
		scheme := source.Params["auth_scheme"]
		if scheme == "" {
			scheme = "Bearer"
		}
		if header := source.Params["auth_header"]; header != "" {
			req.Header.Set(header, token)
		} else {
			req.Header.Set("Authorization", scheme+" "+token)
		}
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
