// Package scoring evaluates enriched records for commercial relevance.
//
// Score is a pure function: deterministic for a fixed record, configuration,
// and reference time, with no hidden state. Missing optional fields simply
// contribute zero to the bonuses that depend on them.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
)

// Result is the analysis verdict for one record.
type Result struct {
	Score         int
	IsOpportunity bool
	Reason        string
}

// Score evaluates rec against cfg at the reference time now.
func Score(rec *model.EnrichedRecord, cfg *config.ScoringConfig, now time.Time) Result {
	disqualified, dqReason, dqDetail := disqualify(rec, cfg, now)

	score, breakdown := compose(rec, cfg)
	if disqualified && score > disqualifiedCap {
		score = disqualifiedCap
	}

	gate, gateDetail := timingGate(rec, cfg, now)

	opportunity := !disqualified && gate && score >= cfg.OpportunityThreshold

	reason := buildReason(rec, score, breakdown, disqualified, dqReason, dqDetail, gate, gateDetail, opportunity)

	return Result{Score: score, IsOpportunity: opportunity, Reason: reason}
}

// timingGate reports whether the record is addressable on timing grounds:
// the opening falls within the configured forward window, or the phase is
// one of the fixed eligible set.
func timingGate(rec *model.EnrichedRecord, cfg *config.ScoringConfig, now time.Time) (bool, string) {
	if gatePhases[rec.ProjectPhase] {
		return true, fmt.Sprintf("phase %q is addressable", rec.ProjectPhase)
	}

	opening, ok := openingDate(rec)
	if !ok {
		return false, "no opening date and phase outside the eligible set"
	}

	months := monthsUntil(now, opening)
	if months >= cfg.MinLeadMonths && months <= cfg.MaxLeadMonths {
		return true, fmt.Sprintf("opening in %d months, within the %d-%d month window",
			months, cfg.MinLeadMonths, cfg.MaxLeadMonths)
	}
	return false, fmt.Sprintf("opening in %d months, outside the %d-%d month window",
		months, cfg.MinLeadMonths, cfg.MaxLeadMonths)
}

// compose sums the base score, the phase and venue bonuses, and the signal
// modifiers, clamped to [0,100]. The breakdown lists each non-zero term in a
// fixed order so the reason text is reproducible.
func compose(rec *model.EnrichedRecord, cfg *config.ScoringConfig) (int, []string) {
	score := baseScore
	breakdown := []string{fmt.Sprintf("base %d", baseScore)}

	if b := phaseBonus[rec.ProjectPhase]; b > 0 {
		score += b
		breakdown = append(breakdown, fmt.Sprintf("phase %d", b))
	}

	vb := otherVenueBonus
	if rec.VenueType != "" {
		if b, ok := venueBonus[strings.ToLower(strings.TrimSpace(rec.VenueType))]; ok {
			vb = b
		}
	}
	score += vb
	breakdown = append(breakdown, fmt.Sprintf("venue %d", vb))

	text := strings.ToLower(rec.Title + " " + rec.Body)

	if rec.Investment != nil && *rec.Investment >= cfg.InvestmentThreshold {
		score += investmentBonus
		breakdown = append(breakdown, fmt.Sprintf("investment %d", investmentBonus))
	}

	if hasConsultantMention(rec, text) {
		score += consultantBonus
		breakdown = append(breakdown, fmt.Sprintf("consultant %d", consultantBonus))
	}

	if inPreferredZone(rec.Zone, cfg.PreferredZones) {
		score += zoneBonus
		breakdown = append(breakdown, fmt.Sprintf("zone %d", zoneBonus))
	}

	if isMultiPurpose(rec, text) {
		score += multiPurposeBonus
		breakdown = append(breakdown, fmt.Sprintf("multi-purpose %d", multiPurposeBonus))
	}

	if firstSignal(text, premiumSignals) != "" {
		score += premiumBonus
		breakdown = append(breakdown, fmt.Sprintf("premium %d", premiumBonus))
	}

	if rec.CompetitorMain != "" && rec.KeyProductsInstalled != "" {
		score += competitorPenalty
		breakdown = append(breakdown, fmt.Sprintf("competitor installed %d", competitorPenalty))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, breakdown
}

func hasConsultantMention(rec *model.EnrichedRecord, text string) bool {
	for _, s := range rec.ArchitectConsultantContractor {
		if firstSignal(strings.ToLower(s), consultantSignals) != "" {
			return true
		}
	}
	return firstSignal(text, consultantSignals) != ""
}

func inPreferredZone(zone string, preferred []string) bool {
	if zone == "" {
		return false
	}
	for _, p := range preferred {
		if strings.EqualFold(zone, p) {
			return true
		}
	}
	return false
}

func isMultiPurpose(rec *model.EnrichedRecord, text string) bool {
	fields := strings.ToLower(rec.VenueType + " " + rec.ProjectType)
	return firstSignal(fields, multiPurposeSignals) != "" || firstSignal(text, multiPurposeSignals) != ""
}

// buildReason assembles the justification text from the same inputs as the
// score itself, in a fixed order.
func buildReason(rec *model.EnrichedRecord, score int, breakdown []string,
	disqualified bool, dqReason, dqDetail string, gate bool, gateDetail string, opportunity bool) string {

	var b strings.Builder

	b.WriteString(venueSummary(rec))

	if rec.ProjectPhase != "" {
		fmt.Fprintf(&b, "; phase %s", rec.ProjectPhase)
	} else {
		b.WriteString("; phase unknown")
	}

	if disqualified {
		fmt.Fprintf(&b, "; disqualified (%s): %s; score capped at %d", dqReason, dqDetail, disqualifiedCap)
	} else {
		fmt.Fprintf(&b, "; timing: %s", gateDetail)
	}

	fmt.Fprintf(&b, "; score %d = %s", score, strings.Join(breakdown, " + "))

	if opportunity {
		b.WriteString("; verdict: opportunity")
	} else {
		b.WriteString("; verdict: not an opportunity")
	}

	return b.String()
}

func venueSummary(rec *model.EnrichedRecord) string {
	name := rec.VenueName
	if name == "" {
		name = "unnamed venue"
	}
	vt := rec.VenueType
	if vt == "" {
		vt = "venue"
	}
	loc := rec.City
	if rec.Country != "" {
		if loc != "" {
			loc += ", "
		}
		loc += rec.Country
	}
	if loc == "" {
		return fmt.Sprintf("%s (%s)", name, vt)
	}
	return fmt.Sprintf("%s (%s) in %s", name, vt, loc)
}
