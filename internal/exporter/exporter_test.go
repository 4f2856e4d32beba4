package exporter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/exporter/crmtest"
	"leadpipe/internal/leadmodel"
)

func sampleLead() leadmodel.Lead {
	return leadmodel.Lead{
		LeadID:       "lead-1",
		SourceURL:    "https://news.example.com/a",
		Title:        "Hospital Expansion",
		MarketSector: leadmodel.SectorHealthcare,
		ProjectStage: leadmodel.StagePlanning,
		Status:       leadmodel.StatusEnriched,
		Company:      &leadmodel.Company{Name: "Acme Health", Domain: "acmehealth.com"},
		Contacts:     []leadmodel.Contact{{Name: "Jane Doe", Email: "jane@acmehealth.com"}},
	}
}

func TestExportCreatesCompanyContactAndDeal(t *testing.T) {
	client := crmtest.New()
	e := New(client, Config{})

	result, err := e.Export(context.Background(), sampleLead())
	require.NoError(t, err)
	assert.NotEmpty(t, result.CompanyID)
	assert.Len(t, result.ContactIDs, 1)
	assert.NotEmpty(t, result.DealID)
	assert.True(t, result.Created)
	assert.Equal(t, 1, client.CompanyCreates)
	assert.Equal(t, 1, client.DealCreates)
	assert.Len(t, client.Notes(result.DealID), 1)
}

func TestExportReusesExistingDealOnSecondCall(t *testing.T) {
	client := crmtest.New()
	e := New(client, Config{})
	ctx := context.Background()

	first, err := e.Export(ctx, sampleLead())
	require.NoError(t, err)

	lead := sampleLead()
	lead.Status = leadmodel.StatusExported
	second, err := e.Export(ctx, lead)
	require.NoError(t, err)

	assert.Equal(t, first.DealID, second.DealID)
	assert.Equal(t, 1, client.DealCreates)
	assert.False(t, second.Created)
}

func TestExportNeverDoubleCreatesCompanyConcurrently(t *testing.T) {
	client := crmtest.New()
	e := New(client, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			lead := sampleLead()
			lead.LeadID = "lead-concurrent"
			_, _ = e.Export(context.Background(), lead)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, client.CompanyCreates)
}

func TestBatchRunnerSkipsOutsideWindow(t *testing.T) {
	var runs int
	var mu sync.Mutex
	runner := NewBatchRunner(BatchConfig{WindowStart: 18, WindowEnd: 6}, func(ctx context.Context) {
		mu.Lock()
		runs++
		mu.Unlock()
	})
	runner.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	runner.tick(context.Background())
	assert.Equal(t, 0, runs)
	assert.Equal(t, 1, runner.Stats().SkippedOutOfWindow)

	runner.now = func() time.Time { return time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC) }
	runner.tick(context.Background())
	assert.Equal(t, 1, runs)
}

func TestBatchConfigInWindowWrapsMidnight(t *testing.T) {
	cfg := BatchConfig{WindowStart: 18, WindowEnd: 6}
	assert.True(t, cfg.InWindow(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, cfg.InWindow(time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)))
	assert.False(t, cfg.InWindow(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}
