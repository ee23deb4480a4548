package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
)

// Disqualification reason codes.
const (
	ReasonTerminalPhase = "terminal_phase"
	ReasonRetrospective = "retrospective"
	ReasonOpeningPast   = "opening_in_past"
	ReasonShortLead     = "insufficient_lead_time"
	ReasonStalled       = "stalled_or_cancelled"
)

// disqualify applies the short-circuit checks that remove a record from
// consideration regardless of its composed score. Returns the reason code
// and a human-readable detail when disqualified.
func disqualify(rec *model.EnrichedRecord, cfg *config.ScoringConfig, now time.Time) (bool, string, string) {
	if rec.ProjectPhase.IsTerminal() {
		return true, ReasonTerminalPhase,
			fmt.Sprintf("project phase %q is terminal", rec.ProjectPhase)
	}

	text := strings.ToLower(rec.Title + " " + rec.Body)

	if sig := firstSignal(text, retrospectiveSignals); sig != "" {
		return true, ReasonRetrospective,
			fmt.Sprintf("retrospective coverage (%q)", sig)
	}

	if sig := firstSignal(text, stallSignals); sig != "" {
		return true, ReasonStalled,
			fmt.Sprintf("stall or cancellation signal (%q)", sig)
	}

	if opening, ok := openingDate(rec); ok {
		months := monthsUntil(now, opening)
		if months < 0 {
			return true, ReasonOpeningPast,
				fmt.Sprintf("opening date %s is in the past", opening.Format("2006-01"))
		}
		if months < cfg.MinLeadMonths {
			return true, ReasonShortLead,
				fmt.Sprintf("only %d months before opening (minimum %d)", months, cfg.MinLeadMonths)
		}
	}

	return false, "", ""
}

// firstSignal returns the first signal found in text, or "".
func firstSignal(text string, signals []string) string {
	for _, s := range signals {
		if strings.Contains(text, s) {
			return s
		}
	}
	return ""
}

// openingDate resolves the best available opening time: the explicit date if
// present, otherwise mid-year of the opening year.
func openingDate(rec *model.EnrichedRecord) (time.Time, bool) {
	if rec.OpeningDate != nil {
		return *rec.OpeningDate, true
	}
	if rec.OpeningYear != nil {
		return time.Date(*rec.OpeningYear, time.July, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// monthsUntil counts whole calendar months from now until t. Negative when
// t is in the past.
func monthsUntil(now, t time.Time) int {
	months := (t.Year()-now.Year())*12 + int(t.Month()) - int(now.Month())
	if t.Day() < now.Day() {
		months--
	}
	return months
}
