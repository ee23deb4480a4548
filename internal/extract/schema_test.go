package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

const fullPayload = `{
  "venue_name": " Horizon Stadium ", "city": "Berlin", "country": "Germany", "zone": "emea",
  "venue_type": "stadium", "capacity": 45000, "project_type": "new build",
  "project_phase": "announced", "opening_year": 2028, "opening_date": "2028-06-01",
  "investment": 15000000, "investment_currency": "eur",
  "investor_owner_management": ["City of Berlin"], "architect_consultant_contractor": [],
  "competitor_main": "", "competitor_other": [],
  "key_products_installed": "", "notes": "flagship project"
}`

func TestParseFields_FullPayload(t *testing.T) {
	fields, err := ParseFields([]byte(fullPayload))
	require.NoError(t, err)

	assert.Equal(t, "Horizon Stadium", fields.VenueName)
	assert.Equal(t, "EMEA", fields.Zone)
	assert.Equal(t, model.PhaseAnnounced, fields.ProjectPhase)
	assert.Equal(t, "EUR", fields.InvestmentCurrency)
	require.NotNil(t, fields.Capacity)
	assert.Equal(t, 45000, *fields.Capacity)
	require.NotNil(t, fields.OpeningDate)
	assert.Equal(t, "2028-06-01", fields.OpeningDate.Format("2006-01-02"))
}

func TestParseFields_MissingKeyIsSchemaViolation(t *testing.T) {
	payload := strings.Replace(fullPayload, `"zone": "emea",`, "", 1)

	_, err := ParseFields([]byte(payload))
	require.Error(t, err)
	assert.True(t, resilience.IsSchemaViolation(err))
	assert.Contains(t, err.Error(), "zone")
}

func TestParseFields_ExplicitAbsenceMarkers(t *testing.T) {
	payload := `{
	  "venue_name": "", "city": "", "country": "", "zone": "",
	  "venue_type": "", "capacity": null, "project_type": "",
	  "project_phase": "", "opening_year": null, "opening_date": null,
	  "investment": null, "investment_currency": "",
	  "investor_owner_management": [], "architect_consultant_contractor": [],
	  "competitor_main": "", "competitor_other": [],
	  "key_products_installed": "", "notes": ""
	}`

	fields, err := ParseFields([]byte(payload))
	require.NoError(t, err)
	assert.Empty(t, fields.VenueName)
	assert.Nil(t, fields.Capacity)
	assert.Nil(t, fields.OpeningDate)
}

func TestParseFields_DomainViolations(t *testing.T) {
	tests := []struct {
		name  string
		from  string
		to    string
		field string
	}{
		{"unknown zone", `"zone": "emea"`, `"zone": "ATLANTIS"`, "zone"},
		{"unknown phase", `"project_phase": "announced"`, `"project_phase": "demolished"`, "project_phase"},
		{"negative capacity", `"capacity": 45000`, `"capacity": -1`, "capacity"},
		{"year out of range", `"opening_year": 2028`, `"opening_year": 1848`, "opening_year"},
		{"negative investment", `"investment": 15000000`, `"investment": -5`, "investment"},
		{"bad currency", `"investment_currency": "eur"`, `"investment_currency": "euros"`, "investment_currency"},
		{"partial date", `"opening_date": "2028-06-01"`, `"opening_date": "2028-06"`, "opening_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := strings.Replace(fullPayload, tt.from, tt.to, 1)
			_, err := ParseFields([]byte(payload))
			require.Error(t, err)
			assert.True(t, resilience.IsSchemaViolation(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestParseFields_MalformedJSON(t *testing.T) {
	_, err := ParseFields([]byte("not json"))
	require.Error(t, err)
	assert.False(t, resilience.IsSchemaViolation(err))
}

func TestCleanJSON(t *testing.T) {
	fenced := "```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, CleanJSON(fenced))
	assert.Equal(t, `{"a": 1}`, CleanJSON(`{"a": 1}`))
}
