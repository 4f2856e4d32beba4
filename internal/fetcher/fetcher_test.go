package fetcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

type scriptedTransport struct {
	attempts int
	outcomes []func(attempt int) (*leadmodel.RawPayload, *leadmodel.FetchError)
}

func (s *scriptedTransport) Fetch(_ context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	s.attempts++
	idx := s.attempts - 1
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}
	return s.outcomes[idx](s.attempts)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{outcomes: []func(int) (*leadmodel.RawPayload, *leadmodel.FetchError){
		func(int) (*leadmodel.RawPayload, *leadmodel.FetchError) {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrServer, SourceID: "s1", StatusCode: 503}
		},
		func(int) (*leadmodel.RawPayload, *leadmodel.FetchError) {
			return &leadmodel.RawPayload{SourceID: "s1", Body: []byte("ok")}, nil
		},
	}}
	f := New(map[leadmodel.SourceType]Transport{leadmodel.SourceTypeFeed: transport},
		RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3}, time.Second)

	payload, ferr := f.Fetch(context.Background(), leadmodel.Source{ID: "s1", Type: leadmodel.SourceTypeFeed})
	require.Nil(t, ferr)
	require.NotNil(t, payload)
	assert.Equal(t, "ok", string(payload.Body))
	assert.Equal(t, 2, transport.attempts)
}

func TestFetchFailsFastOnPermanentError(t *testing.T) {
	transport := &scriptedTransport{outcomes: []func(int) (*leadmodel.RawPayload, *leadmodel.FetchError){
		func(int) (*leadmodel.RawPayload, *leadmodel.FetchError) {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrAuth, SourceID: "s1", StatusCode: 401}
		},
	}}
	f := New(map[leadmodel.SourceType]Transport{leadmodel.SourceTypeJSONAPI: transport},
		RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxAttempts: 5}, time.Second)

	_, ferr := f.Fetch(context.Background(), leadmodel.Source{ID: "s1", Type: leadmodel.SourceTypeJSONAPI})
	require.NotNil(t, ferr)
	assert.Equal(t, leadmodel.FetchErrAuth, ferr.Kind)
	assert.Equal(t, 1, transport.attempts)
}

func TestFetchExhaustsRetriesAndReturnsLastError(t *testing.T) {
	transport := &scriptedTransport{outcomes: []func(int) (*leadmodel.RawPayload, *leadmodel.FetchError){
		func(int) (*leadmodel.RawPayload, *leadmodel.FetchError) {
			return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrTimeout, SourceID: "s1"}
		},
	}}
	f := New(map[leadmodel.SourceType]Transport{leadmodel.SourceTypeFeed: transport},
		RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3}, time.Second)

	_, ferr := f.Fetch(context.Background(), leadmodel.Source{ID: "s1", Type: leadmodel.SourceTypeFeed})
	require.NotNil(t, ferr)
	assert.Equal(t, leadmodel.FetchErrTimeout, ferr.Kind)
	assert.Equal(t, 3, transport.attempts)
}

func TestFetchUnsupportedSourceType(t *testing.T) {
	f := New(map[leadmodel.SourceType]Transport{}, RetryPolicy{}, time.Second)
	_, ferr := f.Fetch(context.Background(), leadmodel.Source{ID: "s1", Type: leadmodel.SourceTypeFeed})
	require.NotNil(t, ferr)
	assert.Equal(t, leadmodel.FetchErrParse, ferr.Kind)
}
