package scoring

import "github.com/meridian-av/leadscan/internal/model"

// Base score every record starts from before bonuses and modifiers.
const baseScore = 30

// Modifier weights.
const (
	investmentBonus   = 10
	consultantBonus   = 8
	zoneBonus         = 5
	multiPurposeBonus = 5
	premiumBonus      = 5
	competitorPenalty = -15
)

// disqualifiedCap is the score ceiling for disqualified records.
const disqualifiedCap = 25

// phaseBonus is the fixed ordered phase table: larger bonuses for earlier,
// more addressable phases; zero for terminal phases and unknown values.
var phaseBonus = map[model.ProjectPhase]int{
	model.PhaseAnnounced:         30,
	model.PhasePlanning:          27,
	model.PhaseDesign:            24,
	model.PhaseApproved:          21,
	model.PhaseTender:            18,
	model.PhaseGroundbreaking:    14,
	model.PhaseConstructionEarly: 10,
	model.PhaseConstructionMid:   6,
	model.PhaseConstructionLate:  2,
	model.PhaseCompleted:         0,
	model.PhaseOperational:       0,
}

// gatePhases are the phases that pass the timing gate regardless of the
// opening-date window.
var gatePhases = map[model.ProjectPhase]bool{
	model.PhaseAnnounced:         true,
	model.PhasePlanning:          true,
	model.PhaseDesign:            true,
	model.PhaseApproved:          true,
	model.PhaseTender:            true,
	model.PhaseGroundbreaking:    true,
	model.PhaseConstructionEarly: true,
	model.PhaseConstructionMid:   true,
}

// otherVenueBonus is the tier used when the venue type is absent or unknown.
const otherVenueBonus = 4

// venueBonus is the fixed venue-category table, keyed by lowercased type.
var venueBonus = map[string]int{
	"stadium":           20,
	"arena":             18,
	"velodrome":         16,
	"concert hall":      16,
	"opera house":       16,
	"theater":           14,
	"theatre":           14,
	"amphitheater":      14,
	"convention center": 12,
	"conference center": 12,
	"exhibition center": 12,
	"nightclub":         10,
	"casino":            10,
	"theme park":        10,
	"hotel":             8,
	"resort":            8,
	"cruise ship":       8,
	"museum":            8,
	"planetarium":       8,
	"house of worship":  6,
	"university":        6,
	"auditorium":        6,
}

// retrospectiveSignals mark coverage of a project that already happened.
var retrospectiveSignals = []string{
	"opened its doors",
	"celebrated its opening",
	"celebrated the opening",
	"anniversary of",
	"inaugurated last",
	"since opening",
	"has been operating",
	"looking back at",
}

// stallSignals indicate cancellation, suspension, or funding doubt.
var stallSignals = []string{
	"cancelled",
	"canceled",
	"on hold",
	"put on ice",
	"postponed indefinitely",
	"suspended",
	"shelved",
	"stalled",
	"funding gap",
	"funding shortfall",
	"funding uncertain",
	"budget overrun",
}

// consultantSignals mark an acoustic or technical consultant mention.
var consultantSignals = []string{
	"acoustic",
	"acoustician",
	"av consultant",
	"audio consultant",
	"technical consultant",
	"theatre consultant",
	"theater consultant",
}

// multiPurposeSignals mark multi-purpose venues.
var multiPurposeSignals = []string{
	"multi-purpose",
	"multipurpose",
	"multi-use",
	"mixed-use",
}

// premiumSignals mark premium-quality projects.
var premiumSignals = []string{
	"world-class",
	"state-of-the-art",
	"flagship",
	"immersive",
	"landmark",
	"iconic",
}
