package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/extract"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
	"github.com/meridian-av/leadscan/internal/scoring"
	"github.com/meridian-av/leadscan/internal/store"
)

// Pipeline drives the enrichment and analysis stages. Each stage reads
// its input from the store, so stages can run in one process or in
// separate invocations.
type Pipeline struct {
	store       store.Store
	extractor   extract.Extractor
	scoring     *config.ScoringConfig
	concurrency int
	batchLimit  int
}

// Stats counts the outcomes of one stage run. Deferred events stay
// pending and are picked up again by the next scheduled run.
type Stats struct {
	Processed   int
	Quarantined int
	Deferred    int
}

// New builds a pipeline from config.
func New(st store.Store, ex extract.Extractor, cfg *config.Config) *Pipeline {
	concurrency := cfg.Pipeline.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	batchLimit := cfg.Pipeline.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 200
	}
	return &Pipeline{
		store:       st,
		extractor:   ex,
		scoring:     &cfg.Scoring,
		concurrency: concurrency,
		batchLimit:  batchLimit,
	}
}

// Enrich extracts business fields for every pending raw event. A failed
// event never blocks the batch: schema violations and other permanent
// failures are quarantined, transient failures are left pending so the
// next scheduled run retries them.
func (p *Pipeline) Enrich(ctx context.Context) (Stats, error) {
	run, err := p.store.CreateRun(ctx, model.RunKindEnrich)
	if err != nil {
		return Stats{}, err
	}

	events, err := p.store.ListPendingEvents(ctx, p.batchLimit)
	if err != nil {
		p.failRun(ctx, run.ID, err)
		return Stats{}, err
	}

	var mu sync.Mutex
	var stats Stats

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			if err := p.enrichOne(gctx, ev); err != nil {
				if resilience.IsTransient(err) {
					zap.L().Warn("extraction deferred to next run",
						zap.String("id", ev.ID), zap.Error(err))
					mu.Lock()
					stats.Deferred++
					mu.Unlock()
					return nil
				}
				if qErr := p.quarantine(gctx, ev, "enrich", err); qErr != nil {
					return qErr
				}
				mu.Lock()
				stats.Quarantined++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			stats.Processed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.failRun(ctx, run.ID, err)
		return stats, err
	}

	p.finishRun(ctx, run.ID, stats)
	zap.L().Info("enrichment complete",
		zap.Int("enriched", stats.Processed),
		zap.Int("quarantined", stats.Quarantined),
		zap.Int("deferred", stats.Deferred))
	return stats, nil
}

func (p *Pipeline) enrichOne(ctx context.Context, ev model.RawEvent) error {
	fields, err := p.extractor.Extract(ctx, ev)
	if err != nil {
		return err
	}
	fields.DeriveSegment()

	rec := &model.EnrichedRecord{
		RawEvent:       ev,
		BusinessFields: fields,
		EnrichedAt:     time.Now().UTC(),
	}
	return p.store.UpsertEnriched(ctx, rec)
}

// Analyze scores every enriched record that has no verdict yet. Scoring
// is deterministic, so a failed batch can simply be rerun.
func (p *Pipeline) Analyze(ctx context.Context) (Stats, error) {
	run, err := p.store.CreateRun(ctx, model.RunKindAnalyze)
	if err != nil {
		return Stats{}, err
	}

	records, err := p.store.ListUnscored(ctx, p.batchLimit)
	if err != nil {
		p.failRun(ctx, run.ID, err)
		return Stats{}, err
	}

	var stats Stats
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		res := scoring.Score(rec, p.scoring, now)
		scored := model.ScoredRecord{
			EnrichedRecord: *rec,
			Score:          res.Score,
			IsOpportunity:  res.IsOpportunity,
			Reason:         res.Reason,
			AnalyzedAt:     now,
		}
		if err := p.store.SaveScore(ctx, rec.ID, scored); err != nil {
			p.failRun(ctx, run.ID, err)
			return stats, err
		}
		stats.Processed++
	}

	p.finishRun(ctx, run.ID, stats)
	zap.L().Info("analysis complete", zap.Int("scored", stats.Processed))
	return stats, nil
}

// Process runs enrichment followed by analysis.
func (p *Pipeline) Process(ctx context.Context) (Stats, Stats, error) {
	enriched, err := p.Enrich(ctx)
	if err != nil {
		return enriched, Stats{}, err
	}
	analyzed, err := p.Analyze(ctx)
	return enriched, analyzed, err
}

// Requeue deletes a quarantine entry and reinserts its event so the next
// enrichment pass picks it up again.
func (p *Pipeline) Requeue(ctx context.Context, id string) error {
	entries, err := p.store.ListQuarantine(ctx, 0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID != id {
			continue
		}
		if _, err := p.store.InsertRawEvent(ctx, &e.Event); err != nil {
			return err
		}
		return p.store.RemoveQuarantine(ctx, id)
	}
	return eris.Errorf("pipeline: quarantine entry %s not found", id)
}

func (p *Pipeline) quarantine(ctx context.Context, ev model.RawEvent, stage string, cause error) error {
	entry := &resilience.QuarantineEntry{
		ID:           ev.ID,
		Event:        ev,
		Reason:       cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		FailedStage:  stage,
		CreatedAt:    time.Now().UTC(),
		LastFailedAt: time.Now().UTC(),
	}
	zap.L().Warn("quarantining event",
		zap.String("id", ev.ID),
		zap.String("stage", stage),
		zap.String("type", entry.ErrorType),
		zap.Error(cause))
	return p.store.AddQuarantine(ctx, entry)
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, stats Stats) {
	counts := map[string]int{
		"processed":   stats.Processed,
		"quarantined": stats.Quarantined,
		"deferred":    stats.Deferred,
	}
	if err := p.store.FinishRun(ctx, runID, model.RunStatusComplete, counts, ""); err != nil {
		zap.L().Warn("finish run", zap.String("run", runID), zap.Error(err))
	}
}

func (p *Pipeline) failRun(ctx context.Context, runID string, cause error) {
	if err := p.store.FinishRun(ctx, runID, model.RunStatusFailed, nil, cause.Error()); err != nil {
		zap.L().Warn("finish run", zap.String("run", runID), zap.Error(err))
	}
}
