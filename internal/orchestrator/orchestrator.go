// Package orchestrator owns component lifecycles and wires the five
// stages (fetch -> extract -> classify -> enrich -> store) plus the
// export loop into one running pipeline (spec.md §4.9 / C9). It is a
// direct generalization of engine/internal/pipeline.Pipeline: the same
// bounded-channel-per-stage topology, the same sync.WaitGroup-per-stage
// "wait then close next queue" chaining, the same single
// context.CancelFunc cancellation token, and the same Stop() shutdown
// sequence (cancel -> wait retries -> wait stage workers -> mark stages
// inactive -> close downstream). It adds a single storage-writer
// goroutine, absent from the teacher (no persistence stage there), and
// an export loop driven by internal/exporter.BatchRunner.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"leadpipe/internal/classifier"
	"leadpipe/internal/enricher"
	"leadpipe/internal/exporter"
	"leadpipe/internal/exporter/crm"
	"leadpipe/internal/fetcher"
	"leadpipe/internal/extractor"
	"leadpipe/internal/governor"
	"leadpipe/internal/leadmodel"
	"leadpipe/internal/registry"
	"leadpipe/internal/store"
	"leadpipe/internal/telemetry/metrics"
	"leadpipe/internal/telemetry/tracing"
)

// ErrShutdownTimedOut is returned by Shutdown when in-flight work did not
// drain within Config.ShutdownDeadline (spec §5: "after which remaining
// work is discarded with a warning").
var ErrShutdownTimedOut = errors.New("orchestrator: shutdown deadline exceeded, remaining work discarded")

// Config controls queue sizing, worker pool widths, and timing knobs.
// Zero values are replaced with spec.md defaults in applyDefaults.
type Config struct {
	SourcesCheckInterval time.Duration // tick loop period, default 1h
	MinSourceInterval    time.Duration // floor applied on top of each Source.MinInterval

	FetchWorkers    int
	ExtractWorkers  int
	ClassifyWorkers int
	EnrichWorkers   int
	BufferSize      int

	FetchTimeout     time.Duration
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	ShutdownDeadline time.Duration // default 30s

	ExportBatchSize int
	Export          exporter.BatchConfig
}

func (c *Config) applyDefaults() {
	if c.SourcesCheckInterval <= 0 {
		c.SourcesCheckInterval = time.Hour
	}
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 4
	}
	if c.ExtractWorkers <= 0 {
		c.ExtractWorkers = 4
	}
	if c.ClassifyWorkers <= 0 {
		c.ClassifyWorkers = 4
	}
	if c.EnrichWorkers <= 0 {
		c.EnrichWorkers = 4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 60 * time.Second
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = 30 * time.Second
	}
	if c.ExportBatchSize <= 0 {
		c.ExportBatchSize = 25
	}
}

// Deps are the already-constructed collaborators. Wiring them in at
// construction (rather than reaching for package-level singletons)
// mirrons how the teacher wires config.RateLimiter/config.ResourceManager
// into NewPipeline.
type Deps struct {
	Registry   *registry.Registry
	Governor   *governor.Governor
	Fetcher    *fetcher.Fetcher
	Extractor  *extractor.Extractor
	Classifier *classifier.Classifier
	Enricher   *enricher.Enricher
	Store      store.LeadStore
	Exporter   *exporter.Exporter
	Logger     *slog.Logger
	Metrics    *metrics.LeadPipeMetrics
	Tracer     tracing.Tracer
}

type extractTask struct {
	source  leadmodel.Source
	payload *leadmodel.RawPayload
}

type classifyTask struct {
	source    leadmodel.Source
	candidate leadmodel.CandidateLead
}

// Orchestrator runs the pipeline described by spec.md §4.9.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	registry   *registry.Registry
	governor   *governor.Governor
	fetcher    *fetcher.Fetcher
	extractor  *extractor.Extractor
	classifier *classifier.Classifier
	enricher   *enricher.Enricher
	store      store.LeadStore
	exportSvc  *exporter.Exporter
	batch      *exporter.BatchRunner
	metrics    *metrics.LeadPipeMetrics
	tracer     tracing.Tracer

	fetchQueue    chan leadmodel.FetchJob
	extractQueue  chan extractTask
	classifyQueue chan classifyTask
	enrichQueue   chan leadmodel.Lead
	storeQueue    chan leadmodel.Lead

	ctx    context.Context
	cancel context.CancelFunc

	wg                                              sync.WaitGroup
	tickWG, fetchWG, extractWG, classifyWG, enrichWG sync.WaitGroup
	retryWG                                         sync.WaitGroup

	paused       atomic.Bool
	shuttingDown atomic.Bool

	now func() time.Time
}

// New constructs an Orchestrator and immediately starts every loop
// (tick, stage workers, storage writer, export scheduler), exactly as
// NewPipeline starts its stages in its own constructor.
func New(d Deps, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New(metrics.Noop())
	}
	tr := d.Tracer
	if tr == nil {
		tr = tracing.Noop()
	}

	o := &Orchestrator{
		cfg:        cfg,
		log:        logger,
		registry:   d.Registry,
		governor:   d.Governor,
		fetcher:    d.Fetcher,
		extractor:  d.Extractor,
		classifier: d.Classifier,
		enricher:   d.Enricher,
		store:      d.Store,
		exportSvc:  d.Exporter,
		metrics:    m,
		tracer:     tr,

		fetchQueue:    make(chan leadmodel.FetchJob, cfg.BufferSize),
		extractQueue:  make(chan extractTask, cfg.BufferSize),
		classifyQueue: make(chan classifyTask, cfg.BufferSize),
		enrichQueue:   make(chan leadmodel.Lead, cfg.BufferSize),
		storeQueue:    make(chan leadmodel.Lead, cfg.BufferSize),

		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}

	o.batch = exporter.NewBatchRunner(cfg.Export, o.runExportBatch)
	o.startStages()
	return o
}

func (o *Orchestrator) startStages() {
	o.tickWG.Add(1)
	o.wg.Add(1)
	go o.tickLoop()

	o.fetchWG.Add(o.cfg.FetchWorkers)
	for i := 0; i < o.cfg.FetchWorkers; i++ {
		o.wg.Add(1)
		go o.fetchWorker()
	}
	go func() { o.fetchWG.Wait(); o.retryWG.Wait(); close(o.extractQueue) }()

	o.extractWG.Add(o.cfg.ExtractWorkers)
	for i := 0; i < o.cfg.ExtractWorkers; i++ {
		o.wg.Add(1)
		go o.extractWorker()
	}
	go func() { o.extractWG.Wait(); close(o.classifyQueue) }()

	o.classifyWG.Add(o.cfg.ClassifyWorkers)
	for i := 0; i < o.cfg.ClassifyWorkers; i++ {
		o.wg.Add(1)
		go o.classifyWorker()
	}
	go func() { o.classifyWG.Wait(); close(o.enrichQueue) }()

	o.enrichWG.Add(o.cfg.EnrichWorkers)
	for i := 0; i < o.cfg.EnrichWorkers; i++ {
		o.wg.Add(1)
		go o.enrichWorker()
	}
	go func() { o.enrichWG.Wait(); close(o.storeQueue) }()

	o.wg.Add(1)
	go o.storageWriter()

	if err := o.batch.Start(o.ctx); err != nil {
		o.log.Error("orchestrator: export scheduler failed to start", "error", err)
	}
}

// tickLoop asks the Source Registry for due sources every
// SourcesCheckInterval and enqueues a FetchJob per due source (spec
// §4.9). It owns fetchQueue and is the only writer that closes it.
func (o *Orchestrator) tickLoop() {
	defer o.wg.Done()
	defer o.tickWG.Done()
	defer close(o.fetchQueue)

	ticker := time.NewTicker(o.cfg.SourcesCheckInterval)
	defer ticker.Stop()

	o.enqueueDue()
	for {
		select {
		case <-ticker.C:
			o.enqueueDue()
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) enqueueDue() {
	if o.paused.Load() || o.governor.Paused() {
		return
	}
	now := o.now()
	for _, source := range o.registry.ListDue(now, o.cfg.MinSourceInterval) {
		job := leadmodel.FetchJob{
			SourceID:    source.ID,
			ScheduledAt: now,
			Attempt:     0,
			Deadline:    now.Add(o.cfg.FetchTimeout),
			State:       leadmodel.JobPending,
		}
		select {
		case o.fetchQueue <- job:
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) fetchWorker() {
	defer o.wg.Done()
	defer o.fetchWG.Done()
	for {
		select {
		case job, ok := <-o.fetchQueue:
			if !ok {
				return
			}
			o.runFetchJob(job)
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) runFetchJob(job leadmodel.FetchJob) {
	ctx, span := o.tracer.StartSpan(o.ctx, "fetch")
	defer span.End()
	start := o.now()

	source, ok := o.registry.Get(job.SourceID)
	if !ok {
		return
	}

	decision, release, err := o.governor.TryAdmit(ctx, source.ID)
	if err != nil {
		o.log.Warn("orchestrator: admission error, dropping fetch job", "source", source.ID, "error", err)
		o.registry.RecordFailure(source.ID, o.now(), 0, 0)
		return
	}
	switch decision {
	case governor.Paused:
		o.scheduleRetry(job, o.cfg.RetryBaseDelay)
		return
	case governor.Deferred:
		o.scheduleRetry(job, o.cfg.RetryBaseDelay)
		return
	}
	defer release()

	job.State = leadmodel.JobFetching
	payload, ferr := o.fetcher.Fetch(ctx, source)
	o.metrics.FetchLatency.Observe(o.now().Sub(start).Seconds(), source.ID)
	if ferr != nil {
		o.governor.Feedback(source.ID, governor.Feedback{Success: false, Err: ferr.Err})
		if ferr.Transient() && job.Attempt+1 < o.cfg.RetryMaxAttempts {
			job.State = leadmodel.JobFailedTransient
			job.Attempt++
			o.metrics.FetchAttempts.Inc(1, source.ID, "transient_failure")
			o.scheduleRetry(job, o.backoffDelay(job.Attempt))
			return
		}
		job.State = leadmodel.JobFailedPermanent
		o.metrics.FetchAttempts.Inc(1, source.ID, "permanent_failure")
		o.registry.RecordFailure(source.ID, o.now(), 5, time.Hour)
		return
	}

	job.State = leadmodel.JobSucceeded
	o.metrics.FetchAttempts.Inc(1, source.ID, "success")
	o.governor.Feedback(source.ID, governor.Feedback{Success: true})
	o.registry.RecordSuccess(source.ID, o.now())

	select {
	case o.extractQueue <- extractTask{source: source, payload: payload}:
	case <-o.ctx.Done():
	}
}

// scheduleRetry re-enters job into pending after delay, incrementing
// Attempt on the caller's side first (state machine: failed_transient ->
// pending with incremented attempt, spec §4.9).
func (o *Orchestrator) scheduleRetry(job leadmodel.FetchJob, delay time.Duration) {
	if o.ctx.Err() != nil {
		return
	}
	job.State = leadmodel.JobPending
	o.retryWG.Add(1)
	go func() {
		defer o.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-o.ctx.Done():
			return
		case <-timer.C:
		}
		select {
		case o.fetchQueue <- job:
		case <-o.ctx.Done():
		}
	}()
}

func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.cfg.RetryBaseDelay * time.Duration(uint64(1)<<uint(attempt))
	if delay > o.cfg.RetryMaxDelay {
		delay = o.cfg.RetryMaxDelay
	}
	return delay
}

func (o *Orchestrator) extractWorker() {
	defer o.wg.Done()
	defer o.extractWG.Done()
	for {
		select {
		case task, ok := <-o.extractQueue:
			if !ok {
				return
			}
			candidates, err := o.extractor.Extract(task.source, task.payload)
			if err != nil {
				o.log.Warn("orchestrator: extraction failed", "source", task.source.ID, "error", err)
				continue
			}
			o.metrics.ExtractCandidates.Inc(float64(len(candidates)), task.source.ID)
			for _, candidate := range candidates {
				select {
				case o.classifyQueue <- classifyTask{source: task.source, candidate: candidate}:
				case <-o.ctx.Done():
					return
				}
			}
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) classifyWorker() {
	defer o.wg.Done()
	defer o.classifyWG.Done()
	for {
		select {
		case task, ok := <-o.classifyQueue:
			if !ok {
				return
			}
			lead, rejection := o.classifier.Classify(task.candidate, task.source)
			if rejection != nil {
				o.log.Debug("orchestrator: candidate rejected", "source", rejection.SourceID, "reason", rejection.Reason)
				o.metrics.ClassifyRejected.Inc(1, string(rejection.Reason))
				continue
			}
			o.metrics.ClassifyAccepted.Inc(1, string(lead.MarketSector))
			validated := markValidated(*lead, o.now())
			select {
			case o.enrichQueue <- validated:
			case <-o.ctx.Done():
				return
			}
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) enrichWorker() {
	defer o.wg.Done()
	defer o.enrichWG.Done()
	for {
		select {
		case lead, ok := <-o.enrichQueue:
			if !ok {
				return
			}
			enriched := markEnriched(o.classifier.Score(o.enricher.Enrich(o.ctx, lead)))
			select {
			case o.storeQueue <- enriched:
			case <-o.ctx.Done():
				return
			}
		case <-o.ctx.Done():
			return
		}
	}
}

// markValidated advances a freshly classified Lead from processing to
// validated. Classify itself leaves the Lead at processing ("about to be
// validated by the caller once persisted") — the orchestrator is that
// caller, and is the only place in the pipeline that owns status
// transitions, per I2's monotonic DAG order.
func markValidated(lead leadmodel.Lead, now time.Time) leadmodel.Lead {
	if leadmodel.CanTransition(lead.Status, leadmodel.StatusValidated) {
		lead.Status = leadmodel.StatusValidated
		lead.ValidatedAt = now.UTC()
	}
	return lead
}

// markEnriched advances a Lead from validated to enriched once Enrich and
// Classifier.Score have both run against it. Enrich stamps EnrichedAt
// itself but never touches Status; Score fills quality_score, priority,
// and win_probability (spec §4.6) but never touches Status either.
func markEnriched(lead leadmodel.Lead) leadmodel.Lead {
	if leadmodel.CanTransition(lead.Status, leadmodel.StatusEnriched) {
		lead.Status = leadmodel.StatusEnriched
	}
	return lead
}

// storageWriter is the single serialized writer spec §5 requires to keep
// dedup correct, grounded on the teacher's single monitorResults
// aggregator goroutine (one dedicated consumer draining a channel and
// serializing a side effect).
func (o *Orchestrator) storageWriter() {
	defer o.wg.Done()
	for {
		select {
		case lead, ok := <-o.storeQueue:
			if !ok {
				return
			}
			result, err := o.store.Upsert(o.ctx, lead)
			if err != nil {
				o.log.Error("orchestrator: store upsert failed", "lead_id", lead.LeadID, "error", err)
				o.metrics.StoreUpserts.Inc(1, "error")
				continue
			}
			if result.Created && result.Lead.Status != lead.Status {
				stored := result.Lead
				stored.Status = lead.Status
				if err := o.store.Update(o.ctx, stored); err != nil {
					o.log.Error("orchestrator: store status update failed", "lead_id", lead.LeadID, "error", err)
				}
			}
			if result.Duplicate != nil {
				o.metrics.StoreDuplicates.Inc(1)
			}
			if result.Created {
				o.metrics.StoreUpserts.Inc(1, "created")
			} else {
				o.metrics.StoreUpserts.Inc(1, "merged")
			}
		case <-o.ctx.Done():
			return
		}
	}
}

// defaultRateLimitBackoff is used when the CRM signals a 429 without a
// usable Retry-After (spec §4.8: "backs off ... or a default (10s)").
const defaultRateLimitBackoff = 10 * time.Second

// runExportBatch drains up to ExportBatchSize enriched Leads and exports
// each. A failure leaves the Lead at status=enriched with an incremented
// attempt counter (spec I4) rather than advancing it. On a CRM
// rate-limit (crm.RateLimitError) the exporter backs off for
// Retry-After, or a default, then the batch continues with the next
// Lead (spec §4.8 item 7).
func (o *Orchestrator) runExportBatch(ctx context.Context) {
	leads, err := o.store.ListPendingExport(ctx, o.cfg.ExportBatchSize)
	if err != nil {
		o.log.Error("orchestrator: list pending export failed", "error", err)
		return
	}
	for _, lead := range leads {
		result, err := o.exportSvc.Export(ctx, lead)
		if err != nil {
			var rateLimited *crm.RateLimitError
			if errors.As(err, &rateLimited) {
				wait := rateLimited.RetryAfter
				if wait <= 0 {
					wait = defaultRateLimitBackoff
				}
				o.log.Warn("orchestrator: export rate limited, backing off", "lead_id", lead.LeadID, "retry_after", wait)
				o.metrics.ExportResults.Inc(1, "rate_limited")
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}

			lead.ExportAttempts++
			if uerr := o.store.Update(ctx, lead); uerr != nil {
				o.log.Error("orchestrator: record export attempt failed", "lead_id", lead.LeadID, "error", uerr)
			}
			o.log.Warn("orchestrator: export failed, left at enriched", "lead_id", lead.LeadID, "error", err)
			o.metrics.ExportResults.Inc(1, "failure")
			continue
		}
		lead.Status = leadmodel.StatusExported
		lead.ExportedAt = o.now().UTC()
		if lead.ExportRecordIDs == nil {
			lead.ExportRecordIDs = make(map[string]string, 2)
		}
		lead.ExportRecordIDs["crm_company"] = result.CompanyID
		lead.ExportRecordIDs["crm_deal"] = result.DealID
		if err := o.store.Update(ctx, lead); err != nil {
			o.log.Error("orchestrator: mark exported failed", "lead_id", lead.LeadID, "error", err)
		}
		o.metrics.ExportResults.Inc(1, "success")
	}
}

// RunOnce runs the fetch->extract->classify->enrich->store chain for a
// single Source synchronously, bypassing the bounded queues — used by
// tests and other direct callers; cmd/leadpipe does not call it.
func (o *Orchestrator) RunOnce(ctx context.Context, sourceID string) error {
	source, ok := o.registry.Get(sourceID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown source %q", sourceID)
	}

	decision, release, err := o.governor.TryAdmit(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("orchestrator: admission: %w", err)
	}
	if decision != governor.Admitted {
		return fmt.Errorf("orchestrator: source %q not admitted: %s", sourceID, decision)
	}
	defer release()

	payload, ferr := o.fetcher.Fetch(ctx, source)
	if ferr != nil {
		o.governor.Feedback(sourceID, governor.Feedback{Success: false, Err: ferr.Err})
		o.registry.RecordFailure(sourceID, o.now(), 5, time.Hour)
		return fmt.Errorf("orchestrator: fetch: %w", ferr)
	}
	o.governor.Feedback(sourceID, governor.Feedback{Success: true})
	o.registry.RecordSuccess(sourceID, o.now())

	candidates, err := o.extractor.Extract(source, payload)
	if err != nil {
		return fmt.Errorf("orchestrator: extract: %w", err)
	}

	var errs []error
	for _, candidate := range candidates {
		lead, rejection := o.classifier.Classify(candidate, source)
		if rejection != nil {
			continue
		}
		validated := markValidated(*lead, o.now())
		enriched := markEnriched(o.classifier.Score(o.enricher.Enrich(ctx, validated)))
		result, err := o.store.Upsert(ctx, enriched)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if result.Created && result.Lead.Status != enriched.Status {
			stored := result.Lead
			stored.Status = enriched.Status
			if err := o.store.Update(ctx, stored); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ExportNow runs one export batch immediately, bypassing the cron
// schedule and its off-hours window.
func (o *Orchestrator) ExportNow(ctx context.Context) error {
	o.batch.RunNow(ctx)
	return nil
}

// Pause stops new FetchJobs from being admitted; in-flight jobs still
// run to completion.
func (o *Orchestrator) Pause() { o.paused.Store(true) }

// Resume reverses Pause.
func (o *Orchestrator) Resume() { o.paused.Store(false) }

// StatusReport summarizes orchestrator health for the CLI's status
// command (spec §6 "stable in-process methods").
type StatusReport struct {
	Paused       bool
	ShuttingDown bool
	QueueDepths  map[string]int
	Sources      []governor.SourceSnapshot
	Export       exporter.BatchStats
}

func (o *Orchestrator) Status() StatusReport {
	depths := map[string]int{
		"fetch":    len(o.fetchQueue),
		"extract":  len(o.extractQueue),
		"classify": len(o.classifyQueue),
		"enrich":   len(o.enrichQueue),
		"store":    len(o.storeQueue),
	}
	for stage, depth := range depths {
		o.metrics.QueueDepth.Set(float64(depth), stage)
	}
	return StatusReport{
		Paused:       o.paused.Load(),
		ShuttingDown: o.shuttingDown.Load(),
		QueueDepths:  depths,
		Sources:      o.governor.Snapshot(),
		Export:       o.batch.Stats(),
	}
}

// Shutdown cancels every loop and waits up to Config.ShutdownDeadline for
// in-flight work to drain (spec §5: "Shutdown is bounded by
// shutdown_deadline ... after which remaining work is discarded with a
// warning"), mirroring Pipeline.Stop()'s cancel -> wait-retries ->
// wait-workers sequence.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shuttingDown.Store(true)
	o.cancel()
	o.batch.Stop()
	o.governor.Close()

	done := make(chan struct{})
	go func() {
		o.retryWG.Wait()
		o.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(o.cfg.ShutdownDeadline)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		o.log.Warn("orchestrator: shutdown deadline exceeded, abandoning remaining work")
		return ErrShutdownTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}
