// Package dedup detects records describing the same real-world project.
//
// Comparison is a full cross product of the new cohort against historical
// records; callers bound cohort size by batching (weekly runs).
// Earlier-indexed cohort records are eligible matches for later ones, so a
// cluster within a single cohort still collapses onto its oldest member.
package dedup

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/similarity"
)

// Engine classifies new records against historical coverage.
type Engine struct {
	cfg *config.DedupConfig
	sim similarity.Func
}

// New creates an Engine with the given thresholds and similarity function.
func New(cfg *config.DedupConfig, sim similarity.Func) *Engine {
	return &Engine{cfg: cfg, sim: sim}
}

// ComparisonKey builds the discriminating key for a record: a fixed
// concatenation of title, venue name, city, and country, each normalized.
func ComparisonKey(rec *model.ScoredRecord) string {
	parts := []string{rec.Title, rec.VenueName, rec.City, rec.Country}
	for i, p := range parts {
		parts[i] = similarity.Normalize(p)
	}
	return strings.Join(parts, " | ")
}

// candidate is a prior record a new record may duplicate.
type candidate struct {
	id        string
	key       string
	createdAt time.Time
}

// Deduplicate classifies every record in cohort against historical records
// and earlier-indexed cohort records. It returns one relation per cohort
// record, in cohort order, or an error with no partial result if the
// similarity function fails (the batch is retried wholesale next run).
func (e *Engine) Deduplicate(ctx context.Context, batchID string, cohort, historical []model.ScoredRecord) ([]model.DuplicateRelation, error) {
	log := zap.L().With(zap.String("batch_id", batchID))
	log.Info("dedup: starting batch",
		zap.Int("cohort", len(cohort)),
		zap.Int("historical", len(historical)),
	)

	// Oldest first so ties resolve to the canonical (earliest) record.
	candidates := make([]candidate, 0, len(historical)+len(cohort))
	for i := range historical {
		candidates = append(candidates, candidate{
			id:        historical[i].ID,
			key:       ComparisonKey(&historical[i]),
			createdAt: historical[i].PublishedAt,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	now := time.Now().UTC()
	relations := make([]model.DuplicateRelation, 0, len(cohort))

	for i := range cohort {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "dedup: context cancelled")
		}

		rec := &cohort[i]
		key := ComparisonKey(rec)

		best := 0.0
		bestID := ""
		for _, c := range candidates {
			if c.id == rec.ID {
				continue
			}
			// New-record key first: symmetry is not assumed.
			score, err := e.sim(ctx, key, c.key)
			if err != nil {
				return nil, eris.Wrapf(err, "dedup: similarity for %s", rec.ID)
			}
			// Strict > keeps the earliest candidate on ties.
			if score > best {
				best = score
				bestID = c.id
			}
		}

		rel := model.DuplicateRelation{
			RecordID:       rec.ID,
			Classification: e.classify(best),
			Similarity:     best,
			BatchID:        batchID,
			ClassifiedAt:   now,
		}
		if rel.Classification != model.DupUnique {
			rel.MatchID = bestID
		}
		relations = append(relations, rel)

		// Earlier-indexed cohort records become eligible matches for the
		// rest of the batch.
		candidates = append(candidates, candidate{
			id:        rec.ID,
			key:       key,
			createdAt: rec.PublishedAt,
		})
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].createdAt.Before(candidates[j].createdAt)
		})
	}

	log.Info("dedup: batch classified", zap.Int("relations", len(relations)))
	return relations, nil
}

// classify maps a similarity score onto the two fixed thresholds.
func (e *Engine) classify(score float64) model.DuplicateClass {
	switch {
	case score >= e.cfg.DuplicateThreshold:
		return model.DupDuplicate
	case score >= e.cfg.SuspectThreshold:
		return model.DupSuspected
	default:
		return model.DupUnique
	}
}
