package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

func newTestStore() *MemStore {
	return NewMemStore(Config{LookbackWindow: 30 * 24 * time.Hour, SimilarityThreshold: 0.85})
}

func TestUpsertInsertsNewLead(t *testing.T) {
	s := newTestStore()
	lead := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", SourceURL: "https://example.com/a", Title: "Hospital Expansion Project", Location: leadmodel.Location{City: "Austin", State: "TX"}}

	out, err := s.Upsert(context.Background(), lead)
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, leadmodel.StatusNew, out.Lead.Status)
}

func TestFindNearDuplicateExactSourceURL(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", SourceURL: "https://example.com/a", Title: "Hospital Expansion"}
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-b", SourceURL: "https://example.com/a", Title: "Completely Different Title"}
	match, err := s.FindNearDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "l1", match.CanonicalLeadID)
	assert.Equal(t, 1.0, match.Similarity)
}

func TestFindNearDuplicateExactSourceRecordIDWithinSource(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", SourceRecordID: "rec-42", Title: "Hospital Expansion"}
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	sameSource := leadmodel.Lead{LeadID: "l2", SourceID: "src-a", SourceRecordID: "rec-42", Title: "Different"}
	match, err := s.FindNearDuplicate(context.Background(), sameSource)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "l1", match.CanonicalLeadID)

	otherSource := leadmodel.Lead{LeadID: "l3", SourceID: "src-b", SourceRecordID: "rec-42", Title: "Different"}
	match, err = s.FindNearDuplicate(context.Background(), otherSource)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestFindNearDuplicateFuzzyTitleLocation(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", Title: "Austin Regional Hospital Expansion Project", Location: leadmodel.Location{City: "Austin", State: "TX"}, FirstSeenAt: time.Now()}
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-b", Title: "Austin Regional Hospital Expansion", Location: leadmodel.Location{City: "Austin", State: "TX"}}
	match, err := s.FindNearDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "l1", match.CanonicalLeadID)
	assert.GreaterOrEqual(t, match.Similarity, 0.85)
}

// TestFindNearDuplicateScenario3 reproduces spec scenario 3 verbatim: a
// shorter title that drops one trailing word from a longer one, same
// city, must still clear the 0.85 threshold.
func TestFindNearDuplicateScenario3(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", Title: "Riverside Hospital Expansion Project", Location: leadmodel.Location{City: "Riverside", State: "CA"}, FirstSeenAt: time.Now()}
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-b", Title: "Riverside Hospital Expansion", Location: leadmodel.Location{City: "Riverside", State: "CA"}}
	match, err := s.FindNearDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "l1", match.CanonicalLeadID)
	assert.GreaterOrEqual(t, match.Similarity, 0.85)
}

func TestFindNearDuplicateRespectsLookbackWindow(t *testing.T) {
	s := newTestStore()
	old := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", Title: "Austin Regional Hospital Expansion Project", Location: leadmodel.Location{City: "Austin", State: "TX"}, FirstSeenAt: time.Now().Add(-60 * 24 * time.Hour)}
	s.leads[old.LeadID] = old

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-b", Title: "Austin Regional Hospital Expansion Project", Location: leadmodel.Location{City: "Austin", State: "TX"}}
	match, err := s.FindNearDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestUpsertMergesConservativelyWhenExistingNotEnriched(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", SourceURL: "https://example.com/a", Title: "Hospital Expansion", Status: leadmodel.StatusProcessing}
	_, err := s.Upsert(context.Background(), first)
	require.NoError(t, err)

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-a", SourceURL: "https://example.com/a", Description: "More detail surfaced later", MarketSector: leadmodel.SectorHealthcare}
	out, err := s.Upsert(context.Background(), candidate)
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Equal(t, "l1", out.Lead.LeadID)
	assert.Equal(t, "More detail surfaced later", out.Lead.Description)
	assert.Equal(t, leadmodel.SectorHealthcare, out.Lead.MarketSector)
	require.NotNil(t, out.Duplicate)
	require.Len(t, s.dedups, 1)
	assert.Equal(t, "l2", s.dedups[0].DuplicateLeadID)
	assert.Equal(t, "l1", s.dedups[0].CanonicalLeadID)
}

func TestUpsertRecordsDedupWhenCanonicalIsTerminal(t *testing.T) {
	s := newTestStore()
	first := leadmodel.Lead{LeadID: "l1", SourceID: "src-a", SourceURL: "https://example.com/a", Title: "Hospital Expansion", Status: leadmodel.StatusExported}
	err := s.Create(context.Background(), first)
	require.NoError(t, err)

	candidate := leadmodel.Lead{LeadID: "l2", SourceID: "src-a", SourceURL: "https://example.com/a", Description: "Would-be duplicate"}
	out, err := s.Upsert(context.Background(), candidate)
	require.NoError(t, err)
	assert.False(t, out.Created)
	require.NotNil(t, out.Duplicate)
	assert.Equal(t, "l1", out.Duplicate.CanonicalLeadID)

	// the terminal canonical lead itself must remain untouched
	stored, err := s.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "", stored.Description)

	// and no second Lead should have been created for "l2"
	_, err = s.Get(context.Background(), "l2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenSetSimilarityIgnoresWordOrderAndCase(t *testing.T) {
	sim := tokenSetSimilarity("Downtown Austin Hospital", "hospital austin downtown")
	assert.Equal(t, 1.0, sim)

	sim = tokenSetSimilarity("Downtown Austin Hospital", "Suburban Dallas Clinic")
	assert.Equal(t, 0.0, sim)
}

func TestListPendingExportReturnsOnlyEnrichedOldestFirst(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Create(ctx, leadmodel.Lead{LeadID: "new", Status: leadmodel.StatusNew}))
	require.NoError(t, s.Create(ctx, leadmodel.Lead{LeadID: "older", Status: leadmodel.StatusEnriched, LastUpdatedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.Create(ctx, leadmodel.Lead{LeadID: "newer", Status: leadmodel.StatusEnriched, LastUpdatedAt: now}))
	require.NoError(t, s.Create(ctx, leadmodel.Lead{LeadID: "exported", Status: leadmodel.StatusExported}))

	pending, err := s.ListPendingExport(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "older", pending[0].LeadID)
	assert.Equal(t, "newer", pending[1].LeadID)
}

func TestCRUDRoundTrip(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	lead := leadmodel.Lead{LeadID: "l1", Title: "Energy Plant"}

	require.NoError(t, s.Create(ctx, lead))
	got, err := s.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Energy Plant", got.Title)

	got.Title = "Energy Plant Phase II"
	require.NoError(t, s.Update(ctx, got))
	got, err = s.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Energy Plant Phase II", got.Title)

	require.NoError(t, s.Delete(ctx, "l1"))
	_, err = s.Get(ctx, "l1")
	assert.ErrorIs(t, err, ErrNotFound)
}
