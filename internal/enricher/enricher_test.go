package enricher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

type stubProvider struct {
	op      Operation
	result  Result
	err     error
	calls   int32
	blockMs int
}

func (p *stubProvider) Operation() Operation { return p.op }
func (p *stubProvider) Lookup(ctx context.Context, lead leadmodel.Lead) (Result, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.blockMs > 0 {
		time.Sleep(time.Duration(p.blockMs) * time.Millisecond)
	}
	return p.result, p.err
}

func TestEnrichMergesConservatively(t *testing.T) {
	existingContact := []leadmodel.Contact{{Name: "Existing Contact"}}
	companyProvider := &stubProvider{op: OpCompanyLookup, result: Result{Company: &leadmodel.Company{Name: "Acme"}}}
	contactProvider := &stubProvider{op: OpContactFinding, result: Result{Contacts: []leadmodel.Contact{{Name: "New Contact"}}}}

	e := New([]Provider{companyProvider, contactProvider}, NewLRUCache(10), Config{})
	lead := leadmodel.Lead{LeadID: "l1", Title: "Hospital Expansion", Contacts: existingContact}

	out := e.Enrich(context.Background(), lead)
	require.NotNil(t, out.Company)
	assert.Equal(t, "Acme", out.Company.Name)
	// existing non-empty Contacts must NOT be overwritten
	require.Len(t, out.Contacts, 1)
	assert.Equal(t, "Existing Contact", out.Contacts[0].Name)
	assert.False(t, out.EnrichedAt.IsZero())
}

func TestEnrichSurvivesProviderFailure(t *testing.T) {
	failing := &stubProvider{op: OpSizeEstimation, err: errors.New("provider down")}
	e := New([]Provider{failing}, NewLRUCache(10), Config{})
	lead := leadmodel.Lead{LeadID: "l1"}

	out := e.Enrich(context.Background(), lead)
	assert.Nil(t, out.EstimatedSize)
	assert.False(t, out.EnrichedAt.IsZero())
}

func TestEnrichUsesCacheOnSecondLookup(t *testing.T) {
	provider := &stubProvider{op: OpCompanyLookup, result: Result{Company: &leadmodel.Company{Name: "Acme"}}}
	cache := NewLRUCache(10)
	e := New([]Provider{provider}, cache, Config{CacheTTL: time.Hour})
	lead := leadmodel.Lead{LeadID: "l1", Title: "Hospital Expansion", Location: leadmodel.Location{City: "Austin"}}

	_ = e.Enrich(context.Background(), lead)
	_ = e.Enrich(context.Background(), lead)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestProviderBreakerCoolsDownAfterFailureRate(t *testing.T) {
	b := newProviderBreaker(4, 0.5, time.Hour)
	assert.True(t, b.Available("p1"))
	b.Record("p1", false)
	b.Record("p1", false)
	b.Record("p1", true)
	b.Record("p1", false)
	assert.False(t, b.Available("p1"))
}

func TestLRUCacheExpiresByTTL(t *testing.T) {
	c := NewLRUCache(10)
	c.now = func() time.Time { return time.Unix(1000, 0) }
	c.Set(leadmodel.CacheEntry{Provider: "p", Key: "k", Value: "v", FetchedAt: time.Unix(1000, 0), TTL: time.Second})
	_, ok := c.Get("p", "k")
	require.True(t, ok)

	c.now = func() time.Time { return time.Unix(1002, 0) }
	_, ok = c.Get("p", "k")
	assert.False(t, ok)
}

func TestLRUCacheEvictsOldestOverCapacity(t *testing.T) {
	c := NewLRUCache(2)
	c.Set(leadmodel.CacheEntry{Provider: "p", Key: "a", Value: "1"})
	c.Set(leadmodel.CacheEntry{Provider: "p", Key: "b", Value: "2"})
	c.Set(leadmodel.CacheEntry{Provider: "p", Key: "c", Value: "3"})
	_, ok := c.Get("p", "a")
	assert.False(t, ok)
	_, ok = c.Get("p", "c")
	assert.True(t, ok)
}
