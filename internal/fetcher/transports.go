package fetcher

import (
	"time"

	"leadpipe/internal/leadmodel"
	"leadpipe/internal/secrets"
)

// DefaultTransports builds the closed dispatch table of production
// transports for every SourceType, the map New() expects. Adding a new
// SourceType means adding a case here and in leadmodel.SourceType, not
// touching the dispatch logic in Fetch.
func DefaultTransports(userAgent string, resolver secrets.Resolver, pageTimeout time.Duration) map[leadmodel.SourceType]Transport {
	return map[leadmodel.SourceType]Transport{
		leadmodel.SourceTypeFeed:        NewFeedTransport(),
		leadmodel.SourceTypeHTMLNews:    NewHTMLNewsTransport(userAgent, pageTimeout),
		leadmodel.SourceTypeWebPortal:   NewWebPortalTransport(pageTimeout),
		leadmodel.SourceTypeJSONAPI:     NewJSONAPITransport(resolver),
		leadmodel.SourceTypeDocumentAPI: NewDocumentAPITransport(),
	}
}
