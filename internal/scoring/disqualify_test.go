package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-av/leadscan/internal/model"
)

func TestDisqualify_Retrospective(t *testing.T) {
	rec := record(model.PhaseAnnounced)
	rec.Body = "The hall opened its doors to a full house."

	dq, reason, detail := disqualify(rec, defaultScoring(), testNow)

	assert.True(t, dq)
	assert.Equal(t, ReasonRetrospective, reason)
	assert.Contains(t, detail, "opened its doors")
}

func TestDisqualify_OpeningInPast(t *testing.T) {
	rec := record(model.PhaseConstructionLate)
	opening := testNow.AddDate(0, -3, 0)
	rec.OpeningDate = &opening

	dq, reason, _ := disqualify(rec, defaultScoring(), testNow)

	assert.True(t, dq)
	assert.Equal(t, ReasonOpeningPast, reason)
}

func TestDisqualify_ShortLead(t *testing.T) {
	rec := record(model.PhaseConstructionLate)
	opening := testNow.AddDate(0, 3, 0)
	rec.OpeningDate = &opening

	dq, reason, _ := disqualify(rec, defaultScoring(), testNow)

	assert.True(t, dq)
	assert.Equal(t, ReasonShortLead, reason)
}

func TestDisqualify_CleanRecordPasses(t *testing.T) {
	rec := record(model.PhasePlanning)
	opening := testNow.AddDate(1, 0, 0)
	rec.OpeningDate = &opening

	dq, _, _ := disqualify(rec, defaultScoring(), testNow)

	assert.False(t, dq)
}

func TestOpeningDate_YearFallsBackToMidYear(t *testing.T) {
	year := 2027
	rec := record(model.PhaseAnnounced)
	rec.OpeningYear = &year

	opening, ok := openingDate(rec)

	assert.True(t, ok)
	assert.Equal(t, time.Date(2027, time.July, 1, 0, 0, 0, 0, time.UTC), opening)
}

func TestOpeningDate_ExplicitDateWins(t *testing.T) {
	year := 2027
	date := time.Date(2027, time.November, 15, 0, 0, 0, 0, time.UTC)
	rec := record(model.PhaseAnnounced)
	rec.OpeningYear = &year
	rec.OpeningDate = &date

	opening, ok := openingDate(rec)

	assert.True(t, ok)
	assert.Equal(t, date, opening)
}

func TestMonthsUntil(t *testing.T) {
	now := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		target time.Time
		want   int
	}{
		{"same day next year", time.Date(2027, time.March, 10, 0, 0, 0, 0, time.UTC), 12},
		{"partial month rounds down", time.Date(2027, time.March, 5, 0, 0, 0, 0, time.UTC), 11},
		{"past date is negative", time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC), -2},
		{"same month", time.Date(2026, time.March, 25, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, monthsUntil(now, tt.target))
		})
	}
}
