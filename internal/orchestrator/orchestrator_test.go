package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/classifier"
	"leadpipe/internal/enricher"
	"leadpipe/internal/exporter"
	"leadpipe/internal/exporter/crmtest"
	"leadpipe/internal/extractor"
	"leadpipe/internal/fetcher"
	"leadpipe/internal/fetcher/fetchertest"
	"leadpipe/internal/governor"
	"leadpipe/internal/leadmodel"
	"leadpipe/internal/registry"
	"leadpipe/internal/store"
)

func testClassifierConfig() classifier.Config {
	return classifier.Config{
		SectorKeywords: map[leadmodel.MarketSector]map[string]float64{
			leadmodel.SectorHealthcare: {"hospital": 0.6, "medical": 0.4},
		},
		SectorPriorityOrder: []leadmodel.MarketSector{leadmodel.SectorHealthcare, leadmodel.SectorOther},
		StageKeywords: []classifier.StageRule{
			{Stage: leadmodel.StagePlanning, Keywords: []string{"planning phase"}},
		},
		TargetRegions:       []string{"Texas"},
		ConfidenceThreshold: 0.4,
		MaxAge:              365 * 24 * time.Hour,
		FieldWeight:         0.4,
		SectorWeight:        0.4,
		StageWeight:         0.3,
		SourceTrustWeight:   0.2,
	}
}

// harness wires every real component together with an in-memory store and
// CRM double, exactly the shape the CLI's production wiring will use,
// minus Postgres and the live HTTP transports.
type harness struct {
	orch     *Orchestrator
	reg      *registry.Registry
	gov      *governor.Governor
	transport *fetchertest.StubTransport
	mem      *store.MemStore
	crm      *crmtest.Client
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	reg := registry.New()
	gov := governor.New(governor.Config{PerSourceMinInterval: time.Millisecond, MaxConcurrentSources: 10, MaxWorkers: 10}, nil)
	transport := fetchertest.New()
	f := fetcher.New(map[leadmodel.SourceType]fetcher.Transport{leadmodel.SourceTypeFeed: transport}, fetcher.RetryPolicy{MaxAttempts: 2}, time.Second)
	ex := extractor.New(extractor.DefaultHandlers())
	cl := classifier.New(testClassifierConfig())
	en := enricher.New(nil, nil, enricher.Config{})
	mem := store.NewMemStore(store.Config{})
	crmClient := crmtest.New()
	exp := exporter.New(crmClient, exporter.Config{})

	o := New(Deps{
		Registry:   reg,
		Governor:   gov,
		Fetcher:    f,
		Extractor:  ex,
		Classifier: cl,
		Enricher:   en,
		Store:      mem,
		Exporter:   exp,
	}, cfg)

	t.Cleanup(func() {
		_ = o.Shutdown(context.Background())
	})

	return &harness{orch: o, reg: reg, gov: gov, transport: transport, mem: mem, crm: crmClient}
}

const feedBody = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item>
  <title>New Hospital Wing in Planning Phase</title>
  <description>A 200-bed medical expansion</description>
  <link>/projects/hospital-wing</link>
  <guid>hosp-1</guid>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
</item>
</channel></rss>`

func feedSource(id string) leadmodel.Source {
	return leadmodel.Source{ID: id, Type: leadmodel.SourceTypeFeed, OriginURL: "https://news.example.com/", RegionTrusted: true, Historical: true, Active: true}
}

func TestRunOnceAdvancesLeadToEnrichedAndPersists(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.Upsert(feedSource("feed1"))
	h.transport.Script("feed1", fetchertest.Result{Payload: &leadmodel.RawPayload{SourceID: "feed1", Body: []byte(feedBody)}})

	err := h.orch.RunOnce(context.Background(), "feed1")
	require.NoError(t, err)

	pending, err := h.mem.ListPendingExport(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, leadmodel.StatusEnriched, pending[0].Status)
	assert.False(t, pending[0].ValidatedAt.IsZero())
}

func TestRunOnceUnknownSourceErrors(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.orch.RunOnce(context.Background(), "missing")
	assert.Error(t, err)
}

func TestExportNowExportsPendingLead(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.Upsert(feedSource("feed1"))
	h.transport.Script("feed1", fetchertest.Result{Payload: &leadmodel.RawPayload{SourceID: "feed1", Body: []byte(feedBody)}})
	require.NoError(t, h.orch.RunOnce(context.Background(), "feed1"))

	require.NoError(t, h.orch.ExportNow(context.Background()))
	// BatchRunner.RunNow runs synchronously, so the export is already
	// reflected by the time ExportNow returns.
	pending, err := h.mem.ListPendingExport(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, h.crm.DealCreates)
}

func TestPauseStopsNewAdmissionsResumeRestores(t *testing.T) {
	h := newHarness(t, Config{})
	h.orch.Pause()
	status := h.orch.Status()
	assert.True(t, status.Paused)

	h.orch.Resume()
	status = h.orch.Status()
	assert.False(t, status.Paused)
}

func TestStatusReportsQueueDepthsAndSources(t *testing.T) {
	h := newHarness(t, Config{})
	h.reg.Upsert(feedSource("feed1"))
	status := h.orch.Status()
	require.Contains(t, status.QueueDepths, "fetch")
	require.Len(t, status.Sources, 0) // governor only snapshots sources it has admitted at least once
}

func TestShutdownDrainsRunningWorkers(t *testing.T) {
	h := newHarness(t, Config{ShutdownDeadline: 2 * time.Second})
	err := h.orch.Shutdown(context.Background())
	assert.NoError(t, err)
	// Shutdown is idempotent enough for test cleanup to call it again.
}

func TestRunFetchJobRetriesTransientFetchError(t *testing.T) {
	h := newHarness(t, Config{RetryBaseDelay: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond, RetryMaxAttempts: 3})
	h.reg.Upsert(feedSource("feed1"))
	h.transport.Script("feed1",
		fetchertest.Result{Err: &leadmodel.FetchError{Kind: leadmodel.FetchErrNetwork, SourceID: "feed1", Err: assert.AnError}},
		fetchertest.Result{Payload: &leadmodel.RawPayload{SourceID: "feed1", Body: []byte(feedBody)}},
	)

	job := leadmodel.FetchJob{SourceID: "feed1", ScheduledAt: time.Now(), State: leadmodel.JobPending}
	h.orch.runFetchJob(job)

	require.Eventually(t, func() bool {
		return h.transport.Calls("feed1") >= 2
	}, time.Second, 5*time.Millisecond)
}
