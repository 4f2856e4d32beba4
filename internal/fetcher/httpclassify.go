package fetcher

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"leadpipe/internal/leadmodel"
)

// classifyStatus maps a non-2xx HTTP response to the appropriate
// FetchError.Kind (spec §4.3/§7): 401/403 -> auth (permanent), 429/503 ->
// throttled (transient, honors Retry-After), other 5xx -> server
// (transient), other 4xx -> parse (permanent, malformed request).
func classifyStatus(sourceID string, resp *http.Response) *leadmodel.FetchError {
	return classifyStatusCode(sourceID, resp.StatusCode, resp.Header.Get("Retry-After"))
}

// classifyStatusCode is classifyStatus's counterpart for callers (colly,
// chromedp) that surface a bare status code and header value rather than
// an *http.Response.
func classifyStatusCode(sourceID string, statusCode int, retryAfter string) *leadmodel.FetchError {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return &leadmodel.FetchError{Kind: leadmodel.FetchErrAuth, SourceID: sourceID, StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusServiceUnavailable:
		return &leadmodel.FetchError{
			Kind:       leadmodel.FetchErrThrottled,
			SourceID:   sourceID,
			StatusCode: statusCode,
			RetryAfter: parseRetryAfter(retryAfter),
		}
	case statusCode >= 500:
		return &leadmodel.FetchError{Kind: leadmodel.FetchErrServer, SourceID: sourceID, StatusCode: statusCode}
	case statusCode >= 400:
		return &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: sourceID, StatusCode: statusCode}
	default:
		return nil
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// classifyNetErr maps a transport-level error (DNS failure, connection
// refused, deadline exceeded) to network or timeout.
func classifyNetErr(sourceID string, err error) *leadmodel.FetchError {
	kind := leadmodel.FetchErrNetwork
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = leadmodel.FetchErrTimeout
	}
	return &leadmodel.FetchError{Kind: kind, SourceID: sourceID, Err: err}
}
