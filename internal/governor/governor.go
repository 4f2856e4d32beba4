// Package governor implements the Rate Governor (C2): the central
// admission controller enforcing per-source minimum interval, global
// concurrency caps, and CPU/memory backpressure. Adapted from the
// teacher's engine/ratelimit.AdaptiveRateLimiter (sharded per-domain
// state, token bucket, circuit breaker) and engine/resources.Manager
// (slot semaphore), generalized from per-HTTP-domain pacing to
// per-Source fetch admission plus a host-resource pause bit.
package governor

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrCircuitOpen = errors.New("governor: source circuit open")

// Decision is the result of TryAdmit.
type Decision int

const (
	Admitted Decision = iota
	Deferred
	Paused
)

func (d Decision) String() string {
	switch d {
	case Admitted:
		return "admitted"
	case Deferred:
		return "deferred"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Config controls the governor's admission policy.
type Config struct {
	MaxConcurrentSources int
	MaxWorkers           int
	PerSourceMinInterval time.Duration
	CircuitTripThreshold int
	CircuitCooldown      time.Duration
	PauseCooldown        time.Duration
	CPUPauseThreshold    float64 // percent, 0 disables sampling
	MemPauseThreshold    float64 // percent, 0 disables sampling
	SampleInterval       time.Duration
	Shards               int
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentSources <= 0 {
		c.MaxConcurrentSources = 3
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.PerSourceMinInterval <= 0 {
		c.PerSourceMinInterval = 60 * time.Minute
	}
	if c.CircuitTripThreshold <= 0 {
		c.CircuitTripThreshold = 5
	}
	if c.CircuitCooldown <= 0 {
		c.CircuitCooldown = time.Hour
	}
	if c.PauseCooldown <= 0 {
		c.PauseCooldown = 5 * time.Minute
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = 10 * time.Second
	}
	if c.Shards <= 0 || (c.Shards&(c.Shards-1)) != 0 {
		c.Shards = 16
	}
}

type shard struct {
	mu      sync.Mutex
	sources map[string]*sourceState
}

// Sampler abstracts host resource sampling so it can be faked in tests;
// the production implementation wraps gopsutil (see sampler_gopsutil.go).
type Sampler interface {
	CPUPercent() (float64, error)
	MemPercent() (float64, error)
}

// Governor is the Rate Governor (C2).
type Governor struct {
	cfg    Config
	clock  Clock
	shards []*shard
	mask   uint64

	sourceSem *semaphore.Weighted
	workerSem *semaphore.Weighted

	sampler  Sampler
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu          sync.Mutex
	pausedUntil time.Time
}

// Feedback reports the outcome of a completed fetch for breaker tracking.
type Feedback struct {
	Success    bool
	StatusCode int
	Err        error
}

// New constructs a Governor. If sampler is nil, CPU/mem backpressure is
// disabled (useful for tests and for environments without gopsutil
// access).
func New(cfg Config, sampler Sampler) *Governor {
	cfg.applyDefaults()
	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{sources: make(map[string]*sourceState)}
	}
	g := &Governor{
		cfg:       cfg,
		clock:     realClock{},
		shards:    shards,
		mask:      uint64(cfg.Shards - 1),
		sourceSem: semaphore.NewWeighted(int64(cfg.MaxConcurrentSources)),
		workerSem: semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		sampler:   sampler,
		stopCh:    make(chan struct{}),
	}
	if sampler != nil {
		g.wg.Add(1)
		go g.sampleLoop()
	}
	return g
}

func (g *Governor) WithClock(c Clock) *Governor {
	if c != nil {
		g.clock = c
	}
	return g
}

func (g *Governor) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return g.shards[uint64(h.Sum32())&g.mask]
}

func (g *Governor) stateFor(sourceID string) *sourceState {
	sh := g.shardFor(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.sources[sourceID]
	if !ok {
		st = newSourceState(g.clock.Now(), g.cfg.PerSourceMinInterval)
		sh.sources[sourceID] = st
	}
	return st
}

// Paused reports whether the global pause bit is currently asserted.
func (g *Governor) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clock.Now().Before(g.pausedUntil)
}

// TryAdmit attempts to admit sourceID for a fetch. It blocks (cooperatively,
// honoring ctx) while waiting on the source's token bucket and the global
// concurrency semaphore, but never blocks on the pause bit: when paused it
// returns immediately with Paused so the caller can back off.
func (g *Governor) TryAdmit(ctx context.Context, sourceID string) (Decision, func(), error) {
	if g.Paused() {
		return Paused, nil, nil
	}
	sh := g.shardFor(sourceID)
	for {
		sh.mu.Lock()
		st, ok := sh.sources[sourceID]
		if !ok {
			st = newSourceState(g.clock.Now(), g.cfg.PerSourceMinInterval)
			sh.sources[sourceID] = st
		}
		wait, err := st.planAdmission(g.clock.Now(), g.cfg.CircuitTripThreshold, g.cfg.CircuitCooldown)
		sh.mu.Unlock()
		if err != nil {
			return Deferred, nil, err
		}
		if wait > 0 {
			if !sleepCtx(ctx, g.clock, wait) {
				return Deferred, nil, ctx.Err()
			}
			continue
		}
		break
	}
	if err := g.sourceSem.Acquire(ctx, 1); err != nil {
		return Deferred, nil, err
	}
	if err := g.workerSem.Acquire(ctx, 1); err != nil {
		g.sourceSem.Release(1)
		return Deferred, nil, err
	}
	release := func() {
		g.workerSem.Release(1)
		g.sourceSem.Release(1)
	}
	return Admitted, release, nil
}

// Feedback records the outcome of an admitted fetch for breaker tracking.
func (g *Governor) Feedback(sourceID string, fb Feedback) {
	sh := g.shardFor(sourceID)
	sh.mu.Lock()
	st, ok := sh.sources[sourceID]
	if !ok {
		st = newSourceState(g.clock.Now(), g.cfg.PerSourceMinInterval)
		sh.sources[sourceID] = st
	}
	st.recordResult(g.clock.Now(), fb.Success, g.cfg.CircuitTripThreshold, g.cfg.CircuitCooldown)
	sh.mu.Unlock()
}

// SourceSnapshot reports the breaker state of one source, for status
// reporting.
type SourceSnapshot struct {
	SourceID     string
	CircuitState string
}

func (g *Governor) Snapshot() []SourceSnapshot {
	var out []SourceSnapshot
	for _, sh := range g.shards {
		sh.mu.Lock()
		for id, st := range sh.sources {
			out = append(out, SourceSnapshot{SourceID: id, CircuitState: st.stateLabel()})
		}
		sh.mu.Unlock()
	}
	return out
}

func (g *Governor) sampleLoop() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.sampleOnce()
		case <-g.stopCh:
			return
		}
	}
}

func (g *Governor) sampleOnce() {
	if g.sampler == nil {
		return
	}
	cpu, cerr := g.sampler.CPUPercent()
	mem, merr := g.sampler.MemPercent()
	over := (cerr == nil && g.cfg.CPUPauseThreshold > 0 && cpu >= g.cfg.CPUPauseThreshold) ||
		(merr == nil && g.cfg.MemPauseThreshold > 0 && mem >= g.cfg.MemPauseThreshold)
	if !over {
		return
	}
	g.mu.Lock()
	g.pausedUntil = g.clock.Now().Add(g.cfg.PauseCooldown)
	g.mu.Unlock()
}

// Close stops the background sampler goroutine.
func (g *Governor) Close() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

func sleepCtx(ctx context.Context, clock Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
