// Package fetcher implements the Fetcher (C3): one operation,
// fetch(Source) -> RawPayload | FetchError, dispatched by Source.Type to
// the correct transport, with per-request timeout and retry/backoff on
// transient failure classes. Generalized from the teacher's
// engine/crawler (colly-backed, single-transport) into a closed
// tagged-variant dispatch table per DESIGN NOTES §9 — no reflection, no
// runtime-registered plugin classes.
package fetcher

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"leadpipe/internal/leadmodel"
)

// Transport performs one raw fetch for a single Source variant. Transports
// never panic on remote failure; they always return a typed FetchError.
type Transport interface {
	Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError)
}

// RetryPolicy controls the exponential backoff applied to transient
// failures (spec §4.3): base 1s, factor 2, max 60s, up to 3-5 attempts.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func (p *RetryPolicy) applyDefaults() {
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 60 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
}

// Fetcher dispatches to a Transport per Source.Type and applies the
// shared retry/timeout policy around every attempt.
type Fetcher struct {
	transports map[leadmodel.SourceType]Transport
	retry      RetryPolicy
	timeout    time.Duration
}

// New builds a Fetcher. transports maps each SourceType to its handler;
// a Source whose Type has no registered transport fails fast as a
// configuration error at call time, never at startup (the core never
// reflects into a handler by string).
func New(transports map[leadmodel.SourceType]Transport, retry RetryPolicy, timeout time.Duration) *Fetcher {
	retry.applyDefaults()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{transports: transports, retry: retry, timeout: timeout}
}

// Fetch performs one fetch for source, retrying transient FetchErrors
// with exponential backoff and failing fast on permanent classes.
func (f *Fetcher) Fetch(ctx context.Context, source leadmodel.Source) (*leadmodel.RawPayload, *leadmodel.FetchError) {
	transport, ok := f.transports[source.Type]
	if !ok {
		return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrParse, SourceID: source.ID, Err: unsupportedTypeError(source.Type)}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retry.BaseDelay
	bo.MaxInterval = f.retry.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1
	bounded := backoff.WithMaxRetries(bo, uint64(f.retry.MaxAttempts-1))
	withCtx := backoff.WithContext(bounded, ctx)

	var payload *leadmodel.RawPayload
	var lastErr *leadmodel.FetchError
	attempt := 0
	var nextRetryAfter time.Duration

	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		p, ferr := transport.Fetch(attemptCtx, source)
		if ferr == nil {
			payload = p
			if payload != nil {
				payload.Attempt = attempt
			}
			return nil
		}
		lastErr = ferr
		nextRetryAfter = ferr.RetryAfter
		if !ferr.Transient() {
			return backoff.Permanent(ferr)
		}
		return ferr
	}

	// honorRetryAfter wraps the bounded backoff so that a server-supplied
	// Retry-After overrides the computed exponential wait, per spec §4.3
	// ("honor Retry-After"). It still implements BackOffContext so
	// backoff.Retry aborts promptly on ctx cancellation between attempts.
	honorRetryAfter := &ctxBackOff{
		ctx: ctx,
		next: func() time.Duration {
			wait := withCtx.NextBackOff()
			if wait == backoff.Stop {
				return backoff.Stop
			}
			if nextRetryAfter > 0 {
				return nextRetryAfter
			}
			return wait
		},
	}

	err := backoff.Retry(operation, honorRetryAfter)
	if err == nil {
		return payload, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: source.ID, Err: err}
}

// ctxBackOff adapts a plain next() func to backoff.BackOffContext so
// backoff.Retry observes ctx cancellation between attempts.
type ctxBackOff struct {
	ctx  context.Context
	next func() time.Duration
}

func (b *ctxBackOff) NextBackOff() time.Duration { return b.next() }
func (b *ctxBackOff) Reset()                     {}
func (b *ctxBackOff) Context() context.Context   { return b.ctx }

type unsupportedType string

func unsupportedTypeError(t leadmodel.SourceType) error { return unsupportedType(t) }
func (u unsupportedType) Error() string                 { return "fetcher: unsupported source type: " + string(u) }
