package reconcile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	return []Row{
		{
			OpportunityID: "op1",
			Title:         "Stadium announced",
			VenueName:     "Horizon Stadium",
			City:          "Berlin",
			Country:       "Germany",
			Segment:       "sports",
			Phase:         "announced",
			Score:         95,
			Reason:        "verdict: opportunity",
			URL:           "https://example.com/1",
			DupClass:      "unique",
			Decision:      "pending",
		},
		{
			OpportunityID: "op2",
			Title:         "Concert hall approved",
			VenueName:     "Aurora Hall",
			Score:         72,
			DupClass:      "suspected",
			SuspectedOf:   "op1",
			Decision:      "approved",
			Validator:     "j.doe",
			DecidedAt:     "2026-03-01",
			Comment:       "confirmed with the architect",
			Notified:      "2026-03-02",
		},
	}
}

func TestXLSXArtifact_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validations.xlsx")
	art := &XLSXArtifact{SheetName: "Opportunities"}

	require.NoError(t, art.Write(path, sampleRows()))

	rows, err := art.Read(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sampleRows()[0], rows[0])
	assert.Equal(t, sampleRows()[1], rows[1])
}

func TestXLSXArtifact_MissingFileIsEmpty(t *testing.T) {
	art := &XLSXArtifact{}
	rows, err := art.Read(filepath.Join(t.TempDir(), "absent.xlsx"))
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestXLSXArtifact_WrongSheetName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validations.xlsx")
	require.NoError(t, (&XLSXArtifact{SheetName: "Opportunities"}).Write(path, sampleRows()))

	_, err := (&XLSXArtifact{SheetName: "Other"}).Read(path)
	assert.Error(t, err)
}

func TestCSVArtifact_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validations.csv")
	art := &CSVArtifact{}

	require.NoError(t, art.Write(path, sampleRows()))

	rows, err := art.Read(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sampleRows(), rows)
}

func TestCSVArtifact_MissingFileIsEmpty(t *testing.T) {
	art := &CSVArtifact{}
	rows, err := art.Read(filepath.Join(t.TempDir(), "absent.csv"))
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestForFormat(t *testing.T) {
	art, err := ForFormat("xlsx", "Opportunities")
	require.NoError(t, err)
	assert.IsType(t, &XLSXArtifact{}, art)

	art, err = ForFormat("CSV", "")
	require.NoError(t, err)
	assert.IsType(t, &CSVArtifact{}, art)

	_, err = ForFormat("parquet", "")
	assert.Error(t, err)
}
