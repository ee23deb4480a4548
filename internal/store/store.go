// Package store persists pipeline records behind a driver-agnostic
// interface. All mutation is keyed upsert by stable identifier, so
// at-least-once delivery converges: re-processing an item rewrites the same
// row with the same values.
package store

import (
	"context"
	"time"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

// Opportunity is a qualifying scored record together with its deduplication
// classification, as surfaced to the reconciliation engine. Records
// classified duplicate are excluded at the query level but retained in
// storage for audit.
type Opportunity struct {
	model.ScoredRecord
	DupClass model.DuplicateClass
	// DupMatch is the canonical record this one was matched against,
	// empty unless a relation with a match exists.
	DupMatch string
}

// ValidationStore is the narrow surface the reconciliation engine needs
// from each durable store. The engine reads each store independently and
// merges in memory; it never joins across stores.
type ValidationStore interface {
	UpsertValidation(ctx context.Context, v *model.ValidationRecord) error
	GetValidation(ctx context.Context, opportunityID string) (*model.ValidationRecord, error)
	MarkNotified(ctx context.Context, opportunityID string, at time.Time) error
}

// Store defines the persistence interface for the pipeline.
type Store interface {
	ValidationStore

	// Raw events. Insert ignores conflicts: events are immutable once
	// ingested.
	InsertRawEvent(ctx context.Context, ev *model.RawEvent) (bool, error)
	ListPendingEvents(ctx context.Context, limit int) ([]model.RawEvent, error)
	GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error)

	// Enrichment stage output.
	UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) error
	ListUnscored(ctx context.Context, limit int) ([]model.EnrichedRecord, error)

	// Analysis stage output, keyed by record ID.
	SaveScore(ctx context.Context, id string, res model.ScoredRecord) error

	// Deduplication. Relations are write-once: SaveRelations never
	// reclassifies a record that already has one.
	ListCohort(ctx context.Context, since time.Time, limit int) ([]model.ScoredRecord, error)
	ListHistorical(ctx context.Context, since time.Time) ([]model.ScoredRecord, error)
	SaveRelations(ctx context.Context, rels []model.DuplicateRelation) (int64, error)

	// Reconciliation surface.
	ListOpportunities(ctx context.Context) ([]Opportunity, error)

	// Quarantine.
	AddQuarantine(ctx context.Context, e *resilience.QuarantineEntry) error
	ListQuarantine(ctx context.Context, limit int) ([]resilience.QuarantineEntry, error)
	RemoveQuarantine(ctx context.Context, id string) error

	// Run log.
	CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, counts map[string]int, runErr string) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
