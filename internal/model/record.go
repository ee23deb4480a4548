package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawEvent is a single news-like item as delivered by the event source.
// Immutable once ingested.
type RawEvent struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
	Language    string    `json:"language,omitempty"`
	Origin      string    `json:"origin,omitempty"`
}

// EventID derives the stable record identifier from the source URL:
// the first 32 hex characters of its SHA-256 digest.
func EventID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:32]
}

// ProjectPhase is the lifecycle phase of a venue/construction project.
type ProjectPhase string

const (
	PhaseAnnounced        ProjectPhase = "announced"
	PhasePlanning         ProjectPhase = "planning"
	PhaseDesign           ProjectPhase = "design"
	PhaseApproved         ProjectPhase = "approved"
	PhaseTender           ProjectPhase = "tender"
	PhaseGroundbreaking   ProjectPhase = "groundbreaking"
	PhaseConstructionEarly ProjectPhase = "construction_early"
	PhaseConstructionMid  ProjectPhase = "construction_mid"
	PhaseConstructionLate ProjectPhase = "construction_late"
	PhaseCompleted        ProjectPhase = "completed"
	PhaseOperational      ProjectPhase = "operational"
)

// IsTerminal reports whether the phase leaves no addressable opportunity.
func (p ProjectPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseOperational
}

// BusinessFields is the fixed optional-field schema produced by the
// extraction capability. Absent values are empty strings / nil pointers,
// never omitted keys.
type BusinessFields struct {
	VenueName     string       `json:"venue_name"`
	City          string       `json:"city"`
	Country       string       `json:"country"`
	Zone          string       `json:"zone"`
	VenueType     string       `json:"venue_type"`
	MarketSegment string       `json:"market_segment"`
	Capacity      *int         `json:"capacity"`
	ProjectType   string       `json:"project_type"`
	ProjectPhase  ProjectPhase `json:"project_phase"`
	OpeningYear   *int         `json:"opening_year"`
	OpeningDate   *time.Time   `json:"opening_date"`

	Investment         *float64 `json:"investment"`
	InvestmentCurrency string   `json:"investment_currency"`

	InvestorOwnerManagement       []string `json:"investor_owner_management"`
	ArchitectConsultantContractor []string `json:"architect_consultant_contractor"`
	CompetitorMain                string   `json:"competitor_main"`
	CompetitorOther               []string `json:"competitor_other"`
	KeyProductsInstalled          string   `json:"key_products_installed"`

	Notes string `json:"notes"`
}

// EnrichedRecord is a RawEvent extended with extracted business fields.
// Created once by the enrichment stage; only deduplication fields may be
// attached afterward.
type EnrichedRecord struct {
	RawEvent
	BusinessFields
	EnrichedAt time.Time `json:"enriched_at"`
}

// ScoredRecord is an EnrichedRecord extended with the analysis verdict.
// Immutable after the analysis stage.
type ScoredRecord struct {
	EnrichedRecord
	Score         int       `json:"score"`
	IsOpportunity bool      `json:"is_opportunity"`
	Reason        string    `json:"reason"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// DuplicateClass classifies a record against prior coverage of the same
// real-world project.
type DuplicateClass string

const (
	DupUnique    DuplicateClass = "unique"
	DupSuspected DuplicateClass = "suspected"
	DupDuplicate DuplicateClass = "duplicate"
)

// DuplicateRelation is the write-once dedup annotation for one record.
type DuplicateRelation struct {
	RecordID       string         `json:"record_id"`
	Classification DuplicateClass `json:"classification"`
	MatchID        string         `json:"match_id,omitempty"`
	Similarity     float64        `json:"similarity"`
	BatchID        string         `json:"batch_id"`
	ClassifiedAt   time.Time      `json:"classified_at"`
}

// Decision is the human validation tri-state.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Recognized reports whether d is a value the reconciliation engine may act
// on. An unrecognized non-empty decision is a merge conflict, not an error.
func (d Decision) Recognized() bool {
	switch d {
	case DecisionPending, DecisionApproved, DecisionRejected:
		return true
	}
	return false
}

// ValidationRecord tracks the human decision for one opportunity and whether
// its notification has been dispatched. Never deleted.
type ValidationRecord struct {
	OpportunityID string     `json:"opportunity_id"`
	Decision      Decision   `json:"decision"`
	Validator     string     `json:"validator,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	NotifiedAt    *time.Time `json:"notified_at,omitempty"`
}
