package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

func testConfig() Config {
	return Config{
		SectorKeywords: map[leadmodel.MarketSector]map[string]float64{
			leadmodel.SectorHealthcare: {"hospital": 0.6, "medical": 0.4},
			leadmodel.SectorEnergy:     {"solar": 0.6, "power plant": 0.5},
		},
		SectorPriorityOrder: []leadmodel.MarketSector{leadmodel.SectorHealthcare, leadmodel.SectorEnergy, leadmodel.SectorOther},
		StageKeywords: []StageRule{
			{Stage: leadmodel.StagePlanning, Keywords: []string{"planning phase", "master plan"}},
			{Stage: leadmodel.StageApproval, Keywords: []string{"approved", "permit issued"}},
		},
		TargetRegions:       []string{"Texas", "Colorado"},
		ConfidenceThreshold: 0.6,
		MaxAge:              30 * 24 * time.Hour,
		FieldWeight:         0.4,
		SectorWeight:        0.4,
		StageWeight:         0.3,
		SourceTrustWeight:   0.2,
	}
}

func TestClassifyAcceptsStrongCandidate(t *testing.T) {
	c := New(testConfig())
	candidate := leadmodel.CandidateLead{
		Title:               "New Hospital Wing in Planning Phase",
		Description:         "A 200-bed medical expansion",
		SourceURL:           "https://example.com/a",
		PreliminaryLocation: "Austin, Texas",
		PublishedAt:         time.Now(),
	}
	lead, rej := c.Classify(candidate, leadmodel.Source{ID: "s1"})
	require.Nil(t, rej)
	require.NotNil(t, lead)
	assert.Equal(t, leadmodel.SectorHealthcare, lead.MarketSector)
	assert.Equal(t, leadmodel.StagePlanning, lead.ProjectStage)
	assert.Equal(t, leadmodel.StatusProcessing, lead.Status)
	assert.NotEmpty(t, lead.LeadID)
}

func TestClassifyRejectsOutOfRegion(t *testing.T) {
	c := New(testConfig())
	candidate := leadmodel.CandidateLead{
		Title: "New Hospital Wing", Description: "medical expansion",
		SourceURL: "https://example.com/a", PreliminaryLocation: "Paris, France",
	}
	_, rej := c.Classify(candidate, leadmodel.Source{ID: "s1"})
	require.NotNil(t, rej)
	assert.Equal(t, RejectOutOfRegion, rej.Reason)
}

func TestClassifyAllowsOutOfRegionWhenSourceTrusted(t *testing.T) {
	c := New(testConfig())
	candidate := leadmodel.CandidateLead{
		Title: "New Hospital Wing in Planning Phase", Description: "medical expansion",
		SourceURL: "https://example.com/a", PreliminaryLocation: "Paris, France",
	}
	lead, rej := c.Classify(candidate, leadmodel.Source{ID: "s1", RegionTrusted: true})
	require.Nil(t, rej)
	require.NotNil(t, lead)
}

func TestClassifyRejectsStaleUnlessHistorical(t *testing.T) {
	c := New(testConfig())
	old := leadmodel.CandidateLead{
		Title: "New Hospital Wing in Planning Phase", Description: "medical expansion",
		SourceURL: "https://example.com/a", PreliminaryLocation: "Austin, Texas",
		PublishedAt: time.Now().Add(-60 * 24 * time.Hour),
	}
	_, rej := c.Classify(old, leadmodel.Source{ID: "s1"})
	require.NotNil(t, rej)
	assert.Equal(t, RejectStale, rej.Reason)

	lead, rej := c.Classify(old, leadmodel.Source{ID: "s1", Historical: true})
	require.Nil(t, rej)
	require.NotNil(t, lead)
}

func TestClassifyRejectsLowConfidence(t *testing.T) {
	c := New(testConfig())
	thin := leadmodel.CandidateLead{Title: "Something happened", PreliminaryLocation: "Austin, Texas"}
	_, rej := c.Classify(thin, leadmodel.Source{ID: "s1"})
	require.NotNil(t, rej)
	assert.Equal(t, RejectLowConfidence, rej.Reason)
}

func TestSectorTieBreaksByPriorityOrder(t *testing.T) {
	cfg := testConfig()
	cfg.SectorKeywords[leadmodel.SectorEnergy] = map[string]float64{"hospital": 0.6}
	sector, _ := classifySector(leadmodel.CandidateLead{Title: "hospital project"}, cfg)
	assert.Equal(t, leadmodel.SectorHealthcare, sector)
}

func TestParseAreaConvertsAcres(t *testing.T) {
	v, ok := parseArea("2 acres")
	require.True(t, ok)
	assert.InDelta(t, 87_120, v, 0.1)
}
