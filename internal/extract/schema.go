package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

// requiredKeys is the fixed extraction schema. Every key must be present in
// the model output; absence is expressed with explicit markers ("", null,
// []), never by omission. market_segment is not listed because it is
// derived from venue_type by the enrichment stage, never asserted upstream.
var requiredKeys = []string{
	"venue_name", "city", "country", "zone",
	"venue_type", "capacity", "project_type", "project_phase",
	"opening_year", "opening_date",
	"investment", "investment_currency",
	"investor_owner_management", "architect_consultant_contractor",
	"competitor_main", "competitor_other",
	"key_products_installed", "notes",
}

var knownZones = map[string]bool{"": true, "EMEA": true, "AMERICAS": true, "APAC": true}

var knownPhases = map[model.ProjectPhase]bool{
	"":                           true,
	model.PhaseAnnounced:         true,
	model.PhasePlanning:          true,
	model.PhaseDesign:            true,
	model.PhaseApproved:          true,
	model.PhaseTender:            true,
	model.PhaseGroundbreaking:    true,
	model.PhaseConstructionEarly: true,
	model.PhaseConstructionMid:   true,
	model.PhaseConstructionLate:  true,
	model.PhaseCompleted:         true,
	model.PhaseOperational:       true,
}

// wireFields mirrors model.BusinessFields on the extraction wire, with the
// opening date as a plain string so partial dates fail as schema violations
// rather than decode errors.
type wireFields struct {
	VenueName                     string   `json:"venue_name"`
	City                          string   `json:"city"`
	Country                       string   `json:"country"`
	Zone                          string   `json:"zone"`
	VenueType                     string   `json:"venue_type"`
	Capacity                      *int     `json:"capacity"`
	ProjectType                   string   `json:"project_type"`
	ProjectPhase                  string   `json:"project_phase"`
	OpeningYear                   *int     `json:"opening_year"`
	OpeningDate                   *string  `json:"opening_date"`
	Investment                    *float64 `json:"investment"`
	InvestmentCurrency            string   `json:"investment_currency"`
	InvestorOwnerManagement       []string `json:"investor_owner_management"`
	ArchitectConsultantContractor []string `json:"architect_consultant_contractor"`
	CompetitorMain                string   `json:"competitor_main"`
	CompetitorOther               []string `json:"competitor_other"`
	KeyProductsInstalled          string   `json:"key_products_installed"`
	Notes                         string   `json:"notes"`
}

// ParseFields decodes and validates an extraction payload. A missing key or
// a value outside its declared domain is a SchemaViolation: the event is
// quarantined, not scored.
func ParseFields(data []byte) (model.BusinessFields, error) {
	var fields model.BusinessFields

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fields, eris.Wrap(err, "extract: decode payload")
	}

	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return fields, &resilience.SchemaViolation{Field: key, Detail: "missing from extraction payload"}
		}
	}

	var wire wireFields
	if err := json.Unmarshal(data, &wire); err != nil {
		return fields, eris.Wrap(err, "extract: decode fields")
	}

	if err := validate(&wire); err != nil {
		return fields, err
	}

	fields = model.BusinessFields{
		VenueName:                     strings.TrimSpace(wire.VenueName),
		City:                          strings.TrimSpace(wire.City),
		Country:                       strings.TrimSpace(wire.Country),
		Zone:                          strings.ToUpper(strings.TrimSpace(wire.Zone)),
		VenueType:                     strings.TrimSpace(wire.VenueType),
		Capacity:                      wire.Capacity,
		ProjectType:                   strings.TrimSpace(wire.ProjectType),
		ProjectPhase:                  model.ProjectPhase(strings.TrimSpace(wire.ProjectPhase)),
		OpeningYear:                   wire.OpeningYear,
		Investment:                    wire.Investment,
		InvestmentCurrency:            strings.ToUpper(strings.TrimSpace(wire.InvestmentCurrency)),
		InvestorOwnerManagement:       wire.InvestorOwnerManagement,
		ArchitectConsultantContractor: wire.ArchitectConsultantContractor,
		CompetitorMain:                strings.TrimSpace(wire.CompetitorMain),
		CompetitorOther:               wire.CompetitorOther,
		KeyProductsInstalled:          strings.TrimSpace(wire.KeyProductsInstalled),
		Notes:                         strings.TrimSpace(wire.Notes),
	}

	if wire.OpeningDate != nil && *wire.OpeningDate != "" {
		t, err := time.Parse("2006-01-02", *wire.OpeningDate)
		if err != nil {
			return model.BusinessFields{}, &resilience.SchemaViolation{
				Field:  "opening_date",
				Detail: fmt.Sprintf("not an ISO date: %q", *wire.OpeningDate),
			}
		}
		fields.OpeningDate = &t
	}

	return fields, nil
}

func validate(w *wireFields) error {
	zone := strings.ToUpper(strings.TrimSpace(w.Zone))
	if !knownZones[zone] {
		return &resilience.SchemaViolation{Field: "zone", Detail: fmt.Sprintf("unknown zone %q", w.Zone)}
	}

	phase := model.ProjectPhase(strings.TrimSpace(w.ProjectPhase))
	if !knownPhases[phase] {
		return &resilience.SchemaViolation{Field: "project_phase", Detail: fmt.Sprintf("unknown phase %q", w.ProjectPhase)}
	}

	if w.Capacity != nil && *w.Capacity < 0 {
		return &resilience.SchemaViolation{Field: "capacity", Detail: "negative capacity"}
	}
	if w.OpeningYear != nil && (*w.OpeningYear < 1900 || *w.OpeningYear > 2200) {
		return &resilience.SchemaViolation{Field: "opening_year", Detail: fmt.Sprintf("year %d out of range", *w.OpeningYear)}
	}
	if w.Investment != nil && *w.Investment < 0 {
		return &resilience.SchemaViolation{Field: "investment", Detail: "negative investment"}
	}
	if cur := strings.TrimSpace(w.InvestmentCurrency); cur != "" && len(cur) != 3 {
		return &resilience.SchemaViolation{Field: "investment_currency", Detail: fmt.Sprintf("not an ISO code: %q", cur)}
	}

	return nil
}
