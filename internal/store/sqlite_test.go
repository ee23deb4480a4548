package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testEvent(id string) *model.RawEvent {
	return &model.RawEvent{
		ID:          id,
		URL:         "https://example.com/" + id,
		Title:       "Stadium announced " + id,
		Body:        "body",
		PublishedAt: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		Origin:      "example.com",
	}
}

func enrichEvent(t *testing.T, s *SQLiteStore, id string, fields model.BusinessFields) {
	t.Helper()
	ctx := context.Background()
	_, err := s.InsertRawEvent(ctx, testEvent(id))
	require.NoError(t, err)
	require.NoError(t, s.UpsertEnriched(ctx, &model.EnrichedRecord{
		RawEvent:       *testEvent(id),
		BusinessFields: fields,
		EnrichedAt:     time.Now().UTC(),
	}))
}

func TestInsertRawEvent_ConflictIgnored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted, err := s.InsertRawEvent(ctx, testEvent("e1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	again, err := s.InsertRawEvent(ctx, testEvent("e1"))
	require.NoError(t, err)
	assert.False(t, again)

	got, err := s.GetRawEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "https://example.com/e1", got.URL)
}

func TestGetRawEvent_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetRawEvent(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListPendingEvents_ExcludesEnrichedAndQuarantined(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"pending", "enriched", "poisoned"} {
		_, err := s.InsertRawEvent(ctx, testEvent(id))
		require.NoError(t, err)
	}

	require.NoError(t, s.UpsertEnriched(ctx, &model.EnrichedRecord{
		RawEvent:   *testEvent("enriched"),
		EnrichedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.AddQuarantine(ctx, &resilience.QuarantineEntry{
		ID:           "poisoned",
		Event:        *testEvent("poisoned"),
		Reason:       "schema violation: zone",
		ErrorType:    "schema",
		FailedStage:  "enrich",
		CreatedAt:    time.Now().UTC(),
		LastFailedAt: time.Now().UTC(),
	}))

	pending, err := s.ListPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].ID)
}

func TestEnrichScoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	capacity := 45000
	enrichEvent(t, s, "e1", model.BusinessFields{
		VenueName:    "Horizon Stadium",
		VenueType:    "stadium",
		Zone:         "EMEA",
		ProjectPhase: model.PhaseAnnounced,
		Capacity:     &capacity,
	})

	unscored, err := s.ListUnscored(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unscored, 1)
	assert.Equal(t, "Horizon Stadium", unscored[0].VenueName)
	require.NotNil(t, unscored[0].Capacity)
	assert.Equal(t, 45000, *unscored[0].Capacity)

	scored := model.ScoredRecord{
		EnrichedRecord: unscored[0],
		Score:          95,
		IsOpportunity:  true,
		Reason:         "verdict: opportunity",
		AnalyzedAt:     time.Now().UTC(),
	}
	require.NoError(t, s.SaveScore(ctx, "e1", scored))

	unscored, err = s.ListUnscored(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unscored)

	cohort, err := s.ListCohort(ctx, time.Now().UTC().AddDate(0, 0, -1), 10)
	require.NoError(t, err)
	require.Len(t, cohort, 1)
	assert.Equal(t, 95, cohort[0].Score)
	assert.True(t, cohort[0].IsOpportunity)
}

func TestSaveScore_UnknownRecord(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveScore(context.Background(), "ghost", model.ScoredRecord{AnalyzedAt: time.Now()})
	assert.Error(t, err)
}

func saveScored(t *testing.T, s *SQLiteStore, id string, score int, opportunity bool) {
	t.Helper()
	enrichEvent(t, s, id, model.BusinessFields{VenueName: "V " + id, VenueType: "arena"})
	require.NoError(t, s.SaveScore(context.Background(), id, model.ScoredRecord{
		Score:         score,
		IsOpportunity: opportunity,
		Reason:        "r",
		AnalyzedAt:    time.Now().UTC(),
	}))
}

func TestSaveRelations_WriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveScored(t, s, "a", 60, true)
	saveScored(t, s, "b", 70, true)

	first := []model.DuplicateRelation{
		{RecordID: "a", Classification: model.DupUnique, BatchID: "b1", ClassifiedAt: time.Now().UTC()},
		{RecordID: "b", Classification: model.DupDuplicate, MatchID: "a", Similarity: 0.95, BatchID: "b1", ClassifiedAt: time.Now().UTC()},
	}
	saved, err := s.SaveRelations(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved)

	// A rerun must not reclassify either record.
	rerun := []model.DuplicateRelation{
		{RecordID: "a", Classification: model.DupDuplicate, MatchID: "b", Similarity: 0.99, BatchID: "b2", ClassifiedAt: time.Now().UTC()},
	}
	saved, err = s.SaveRelations(ctx, rerun)
	require.NoError(t, err)
	assert.Equal(t, int64(0), saved)

	historical, err := s.ListHistorical(ctx, time.Now().UTC().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Len(t, historical, 2)

	cohort, err := s.ListCohort(ctx, time.Now().UTC().AddDate(0, 0, -1), 10)
	require.NoError(t, err)
	assert.Empty(t, cohort, "classified records leave the cohort")
}

func TestListOpportunities_ExcludesDuplicatesAndNonOpportunities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveScored(t, s, "win", 80, true)
	saveScored(t, s, "dup", 75, true)
	saveScored(t, s, "low", 30, false)
	saveScored(t, s, "suspect", 65, true)

	_, err := s.SaveRelations(ctx, []model.DuplicateRelation{
		{RecordID: "dup", Classification: model.DupDuplicate, MatchID: "win", Similarity: 0.95, BatchID: "b", ClassifiedAt: time.Now().UTC()},
		{RecordID: "suspect", Classification: model.DupSuspected, MatchID: "win", Similarity: 0.87, BatchID: "b", ClassifiedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	opps, err := s.ListOpportunities(ctx)
	require.NoError(t, err)
	require.Len(t, opps, 2)

	// Highest score first.
	assert.Equal(t, "win", opps[0].ID)
	assert.Equal(t, model.DupUnique, opps[0].DupClass)
	assert.Empty(t, opps[0].DupMatch)
	assert.Equal(t, "suspect", opps[1].ID)
	assert.Equal(t, model.DupSuspected, opps[1].DupClass)
	assert.Equal(t, "win", opps[1].DupMatch, "suspected rows carry their canonical match")
}

func TestValidationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	decided := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	v := &model.ValidationRecord{
		OpportunityID: "op1",
		Decision:      model.DecisionApproved,
		Validator:     "j.doe",
		DecidedAt:     &decided,
		Comment:       "looks real",
	}
	require.NoError(t, s.UpsertValidation(ctx, v))

	got, err := s.GetValidation(ctx, "op1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.DecisionApproved, got.Decision)
	assert.Nil(t, got.NotifiedAt)

	notified := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkNotified(ctx, "op1", notified))

	got, err = s.GetValidation(ctx, "op1")
	require.NoError(t, err)
	require.NotNil(t, got.NotifiedAt)

	// A later mark must not move the timestamp.
	require.NoError(t, s.MarkNotified(ctx, "op1", notified.AddDate(0, 0, 5)))
	again, err := s.GetValidation(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, got.NotifiedAt.UTC(), again.NotifiedAt.UTC())

	// Re-upserting the decision must not clear the notification mark.
	v.Comment = "updated comment"
	require.NoError(t, s.UpsertValidation(ctx, v))
	final, err := s.GetValidation(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, "updated comment", final.Comment)
	require.NotNil(t, final.NotifiedAt)
}

func TestGetValidation_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetValidation(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQuarantineLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &resilience.QuarantineEntry{
		ID:           "q1",
		Event:        *testEvent("q1"),
		Reason:       "schema violation: zone: unknown zone",
		ErrorType:    "schema",
		FailedStage:  "enrich",
		CreatedAt:    time.Now().UTC(),
		LastFailedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AddQuarantine(ctx, entry))

	// A second failure for the same event bumps the retry count.
	require.NoError(t, s.AddQuarantine(ctx, entry))

	entries, err := s.ListQuarantine(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "schema", entries[0].ErrorType)
	assert.Equal(t, "https://example.com/q1", entries[0].Event.URL)

	require.NoError(t, s.RemoveQuarantine(ctx, "q1"))
	entries, err = s.ListQuarantine(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, model.RunKindDedup)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	err = s.FinishRun(ctx, run.ID, model.RunStatusComplete, map[string]int{"classified": 3}, "")
	require.NoError(t, err)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
