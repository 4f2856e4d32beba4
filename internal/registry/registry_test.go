package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/leadmodel"
)

func TestListDueOrdersLongestWaitingFirst(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(leadmodel.Source{ID: "a", Active: true, LastSuccessAt: now.Add(-2 * time.Hour)})
	r.Upsert(leadmodel.Source{ID: "b", Active: true, LastSuccessAt: now.Add(-3 * time.Hour)})
	r.Upsert(leadmodel.Source{ID: "c", Active: true}) // never run: due immediately, waited = max

	due := r.ListDue(now, time.Hour)
	require.Len(t, due, 3)
	assert.Equal(t, "c", due[0].ID)
	assert.Equal(t, "b", due[1].ID)
	assert.Equal(t, "a", due[2].ID)
}

func TestListDueExcludesInactiveAndNotYetDue(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(leadmodel.Source{ID: "inactive", Active: false})
	r.Upsert(leadmodel.Source{ID: "recent", Active: true, LastSuccessAt: now.Add(-time.Minute)})
	due := r.ListDue(now, time.Hour)
	assert.Empty(t, due)
}

func TestRetirePreservesHistory(t *testing.T) {
	r := New()
	r.Upsert(leadmodel.Source{ID: "s", Active: true})
	r.Retire("s")
	s, ok := r.Get("s")
	require.True(t, ok)
	assert.False(t, s.Active)
}

func TestRecordFailureTripsCircuit(t *testing.T) {
	r := New()
	now := time.Now()
	r.Upsert(leadmodel.Source{ID: "s", Active: true})
	r.RecordFailure("s", now, 2, time.Hour)
	r.RecordFailure("s", now, 2, time.Hour)
	s, _ := r.Get("s")
	assert.True(t, s.CircuitOpenUntil.After(now))
	assert.False(t, s.Due(now, time.Hour))
}
