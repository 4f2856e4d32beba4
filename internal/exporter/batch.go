package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// BatchConfig controls the export loop's cron schedule and off-hours
// export window (spec.md DOMAIN STACK: "calendar-aware windows
// 18:00-06:00", beyond a bare time.Ticker's reach — the teacher
// schedules crawls with a ticker, but nothing in spec.md needs a
// wall-clock window there, so the ticker stays a ticker for the fetch
// loop and only the exporter adopts cron).
type BatchConfig struct {
	// Schedule is a standard 5-field cron expression for how often the
	// export loop wakes up to drain pending Leads.
	Schedule string
	// WindowStart/WindowEnd bound the hours (0-23, WindowStart may be
	// greater than WindowEnd to express an overnight window like 18-6)
	// during which export is allowed to run at all. Zero value (0, 0)
	// means no restriction.
	WindowStart int
	WindowEnd   int
}

func (c *BatchConfig) applyDefaults() {
	if c.Schedule == "" {
		c.Schedule = "*/15 * * * *"
	}
}

// InWindow reports whether t falls inside the configured off-hours
// export window. An overnight window (WindowStart > WindowEnd, e.g.
// 18..6) wraps past midnight.
func (c BatchConfig) InWindow(t time.Time) bool {
	if c.WindowStart == 0 && c.WindowEnd == 0 {
		return true
	}
	hour := t.Hour()
	if c.WindowStart <= c.WindowEnd {
		return hour >= c.WindowStart && hour < c.WindowEnd
	}
	return hour >= c.WindowStart || hour < c.WindowEnd
}

// BatchRunner drives Export calls on a cron schedule, skipping ticks
// outside the configured window. BatchStats counts runs and ticks skipped
// outside the window, and records the time of the last run.
type BatchRunner struct {
	cfg  BatchConfig
	cron *cron.Cron
	run  func(ctx context.Context)
	now  func() time.Time

	mu    sync.Mutex
	stats BatchStats
}

type BatchStats struct {
	Runs      int
	SkippedOutOfWindow int
	LastRunAt time.Time
}

// NewBatchRunner wires run to fire on cfg.Schedule, gated by cfg's window.
func NewBatchRunner(cfg BatchConfig, run func(ctx context.Context)) *BatchRunner {
	cfg.applyDefaults()
	return &BatchRunner{cfg: cfg, cron: cron.New(), run: run, now: time.Now}
}

// Start registers the schedule and begins the cron loop. Call Stop to
// drain in-flight ticks and halt.
func (b *BatchRunner) Start(ctx context.Context) error {
	_, err := b.cron.AddFunc(b.cfg.Schedule, func() {
		b.tick(ctx)
	})
	if err != nil {
		return err
	}
	b.cron.Start()
	return nil
}

// Stop blocks until any in-flight tick completes, per cron's own
// graceful-stop contract.
func (b *BatchRunner) Stop() {
	<-b.cron.Stop().Done()
}

func (b *BatchRunner) tick(ctx context.Context) {
	now := b.now()
	if !b.cfg.InWindow(now) {
		b.mu.Lock()
		b.stats.SkippedOutOfWindow++
		b.mu.Unlock()
		return
	}
	b.run(ctx)
	b.mu.Lock()
	b.stats.Runs++
	b.stats.LastRunAt = now
	b.mu.Unlock()
}

// Stats returns a snapshot of the runner's counters.
func (b *BatchRunner) Stats() BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// RunNow executes run immediately, bypassing both the cron schedule and
// the window check (used by the orchestrator's ExportNow entry point).
func (b *BatchRunner) RunNow(ctx context.Context) {
	b.run(ctx)
	b.mu.Lock()
	b.stats.Runs++
	b.stats.LastRunAt = b.now()
	b.mu.Unlock()
}
