package enricher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"leadpipe/internal/leadmodel"
)

// Config controls the per-provider timeout, the cache TTL and the
// provider breaker (window, failure rate, cooldown). It has no
// per-provider concurrency limit.
type Config struct {
	ProviderTimeout    time.Duration
	CacheTTL           time.Duration
	BreakerWindow      int
	BreakerFailRate    float64
	BreakerCooldown    time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 7 * 24 * time.Hour
	}
}

// Enricher runs every registered Provider for a Lead in parallel via an
// errgroup join barrier (spec §4.6, the ecosystem's errgroup plays the
// role kubernaut uses golang.org/x/sync for: a bounded parallel fan-out
// with a single error/completion barrier), merging results
// conservatively and never failing the Lead on provider error.
type Enricher struct {
	providers []Provider
	cache     Cache
	breaker   *providerBreaker
	cfg       Config
}

func New(providers []Provider, cache Cache, cfg Config) *Enricher {
	cfg.applyDefaults()
	return &Enricher{
		providers: providers,
		cache:     cache,
		breaker:   newProviderBreaker(cfg.BreakerWindow, cfg.BreakerFailRate, cfg.BreakerCooldown),
		cfg:       cfg,
	}
}

// Enrich runs all providers for lead and applies their results, then
// returns the enriched copy. Provider failures never fail the pipeline
// (spec §4.6: "enrichment failure is never a pipeline failure").
func (e *Enricher) Enrich(ctx context.Context, lead leadmodel.Lead) leadmodel.Lead {
	results := make([]Result, len(e.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range e.providers {
		i, p := i, p
		g.Go(func() error {
			results[i] = e.runProvider(gctx, p, lead)
			return nil
		})
	}
	_ = g.Wait() // providers never return a g-fatal error; Lookup errors are swallowed in runProvider

	out := lead
	for _, r := range results {
		mergeConservative(&out, r)
	}
	out.EnrichedAt = time.Now().UTC()
	out.LastUpdatedAt = out.EnrichedAt
	return out
}

func (e *Enricher) runProvider(ctx context.Context, p Provider, lead leadmodel.Lead) Result {
	name := string(p.Operation())
	if !e.breaker.Available(name) {
		return Result{}
	}

	key := lookupKey(lead)
	if e.cache != nil {
		if entry, ok := e.cache.Get(name, key); ok {
			return decodeResult(entry.Value)
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()
	result, err := p.Lookup(opCtx, lead)
	e.breaker.Record(name, err == nil)
	if err != nil {
		return Result{}
	}
	if e.cache != nil {
		e.cache.Set(leadmodel.CacheEntry{
			Provider: name, Key: key, Value: encodeResult(result), FetchedAt: time.Now(), TTL: e.cfg.CacheTTL,
		})
	}
	return result
}

// lookupKey builds the cache key from the Lead's identifying fields, per
// spec §4.6: "Builds a lookup key from the Lead's current fields."
func lookupKey(lead leadmodel.Lead) string {
	title, location := lead.NormalizedTitleLocation()
	return title + "|" + location
}

// mergeConservative applies r's fields to lead only where lead's
// corresponding field is currently empty/nil (spec §4.6: "enrichment
// NEVER overwrites a non-null existing field; it only fills gaps").
func mergeConservative(lead *leadmodel.Lead, r Result) {
	if lead.Company == nil && r.Company != nil {
		lead.Company = r.Company
	}
	if len(lead.Contacts) == 0 && len(r.Contacts) > 0 {
		lead.Contacts = r.Contacts
	}
	if lead.EstimatedSize == nil && r.EstimatedSize != nil {
		lead.EstimatedSize = r.EstimatedSize
	}
	if len(r.RelatedProjects) > 0 {
		for _, rp := range r.RelatedProjects {
			if lead.Notes != "" {
				lead.Notes += "; "
			}
			lead.Notes += "related: " + rp
		}
	}
}
