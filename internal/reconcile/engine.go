package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-av/leadscan/internal/config"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/notify"
	"github.com/meridian-av/leadscan/internal/store"
)

// MergeConflict records a row whose decision value the engine does not
// recognize. Conflicting rows are reported and left untouched so a
// validator can correct them.
type MergeConflict struct {
	OpportunityID string
	Decision      string
}

// PublishStats summarizes one publish pass.
type PublishStats struct {
	Existing int
	Added    int
}

// AbsorbStats summarizes one absorb pass.
type AbsorbStats struct {
	Absorbed  int
	Notified  int
	Pending   int
	Conflicts []MergeConflict
}

// Engine reconciles opportunity facts with the external validation
// artifact. Publish pushes new opportunities out; Absorb pulls validator
// decisions back in and triggers one notification per decided row.
type Engine struct {
	store    store.Store
	mirror   store.ValidationStore // optional secondary copy of validation state
	artifact Artifact
	path     string
	notifier notify.Notifier
	to       string
}

// New builds a reconciliation engine.
func New(st store.Store, mirror store.ValidationStore, cfg *config.ReconcileConfig, nc *config.NotifyConfig) (*Engine, error) {
	art, err := ForFormat(cfg.ArtifactFormat, cfg.SheetName)
	if err != nil {
		return nil, err
	}
	return &Engine{
		store:    st,
		mirror:   mirror,
		artifact: art,
		path:     cfg.ArtifactPath,
		notifier: notify.ForConfig(nc),
		to:       nc.Recipient,
	}, nil
}

// Publish appends current opportunities to the validation artifact.
// Rows already in the document are carried over untouched, whatever
// state the validators left them in.
func (e *Engine) Publish(ctx context.Context) (PublishStats, error) {
	rows, err := e.artifact.Read(e.path)
	if err != nil {
		return PublishStats{}, err
	}

	rows, stats, err := e.appendOpportunities(ctx, rows)
	if err != nil {
		return stats, err
	}

	if err := e.artifact.Write(e.path, rows); err != nil {
		return stats, err
	}

	zap.L().Info("published opportunities",
		zap.String("artifact", e.path),
		zap.Int("existing", stats.Existing),
		zap.Int("added", stats.Added))
	return stats, nil
}

// Absorb reads validator decisions from the artifact, records them in the
// stores, and sends one notification per decided row. The notified marker
// in the artifact gates delivery: rows carrying a marker are terminal, and
// the marker is written back only after the notification succeeded, so a
// failed send is retried on the next absorb run.
func (e *Engine) Absorb(ctx context.Context) (AbsorbStats, error) {
	rows, err := e.artifact.Read(e.path)
	if err != nil {
		return AbsorbStats{}, err
	}

	stats, changed, err := e.absorbRows(ctx, rows)
	if err != nil {
		return stats, err
	}
	if changed {
		if err := e.artifact.Write(e.path, rows); err != nil {
			return stats, err
		}
	}

	zap.L().Info("absorbed validation decisions",
		zap.Int("absorbed", stats.Absorbed),
		zap.Int("notified", stats.Notified),
		zap.Int("pending", stats.Pending),
		zap.Int("conflicts", len(stats.Conflicts)))
	return stats, nil
}

// Sync runs Publish then Absorb over a single read of the artifact and
// writes the document back once. Freshly appended rows carry no decision,
// so the absorb pass skips them.
func (e *Engine) Sync(ctx context.Context) (PublishStats, AbsorbStats, error) {
	rows, err := e.artifact.Read(e.path)
	if err != nil {
		return PublishStats{}, AbsorbStats{}, err
	}

	rows, pub, err := e.appendOpportunities(ctx, rows)
	if err != nil {
		return pub, AbsorbStats{}, err
	}
	abs, _, err := e.absorbRows(ctx, rows)
	if err != nil {
		return pub, abs, err
	}

	if err := e.artifact.Write(e.path, rows); err != nil {
		return pub, abs, err
	}

	zap.L().Info("synced validation artifact",
		zap.String("artifact", e.path),
		zap.Int("added", pub.Added),
		zap.Int("absorbed", abs.Absorbed),
		zap.Int("notified", abs.Notified))
	return pub, abs, nil
}

func (e *Engine) appendOpportunities(ctx context.Context, existing []Row) ([]Row, PublishStats, error) {
	stats := PublishStats{Existing: len(existing)}

	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		seen[row.OpportunityID] = struct{}{}
	}

	opps, err := e.store.ListOpportunities(ctx)
	if err != nil {
		return existing, stats, err
	}

	rows := existing
	for _, op := range opps {
		if _, ok := seen[op.ID]; ok {
			continue
		}
		rows = append(rows, opportunityRow(op))
		stats.Added++
	}
	return rows, stats, nil
}

// absorbRows walks the document in place. It reports whether any notified
// markers were set, so callers know the document needs writing back.
func (e *Engine) absorbRows(ctx context.Context, rows []Row) (AbsorbStats, bool, error) {
	var stats AbsorbStats
	changed := false

	for i := range rows {
		row := &rows[i]
		decision := model.Decision(strings.ToLower(strings.TrimSpace(row.Decision)))
		if decision == "" || decision == model.DecisionPending {
			stats.Pending++
			continue
		}
		if !decision.Recognized() {
			stats.Conflicts = append(stats.Conflicts, MergeConflict{
				OpportunityID: row.OpportunityID,
				Decision:      row.Decision,
			})
			zap.L().Warn("unrecognized decision in validation artifact",
				zap.String("opportunity", row.OpportunityID),
				zap.String("decision", row.Decision))
			continue
		}
		if row.Notified != "" {
			continue
		}

		prior, err := e.store.GetValidation(ctx, row.OpportunityID)
		if err != nil {
			return stats, changed, err
		}

		v := validationFromRow(*row, decision)
		if err := e.upsertValidation(ctx, v); err != nil {
			return stats, changed, err
		}
		stats.Absorbed++

		// The stores already saw a send for this row; heal the document
		// without delivering again.
		if prior != nil && prior.NotifiedAt != nil {
			row.Notified = prior.NotifiedAt.UTC().Format("2006-01-02")
			changed = true
			continue
		}

		if err := e.notifier.Notify(ctx, notify.Notification{
			Recipient: e.to,
			Subject:   fmt.Sprintf("Opportunity %s: %s", decision, row.VenueName),
			Body:      decisionBody(*row),
		}); err != nil {
			zap.L().Warn("notification failed, row left for next absorb",
				zap.String("opportunity", row.OpportunityID), zap.Error(err))
			continue
		}

		now := time.Now().UTC()
		if err := e.markNotified(ctx, row.OpportunityID, now); err != nil {
			return stats, changed, err
		}
		row.Notified = now.Format("2006-01-02")
		changed = true
		stats.Notified++
	}
	return stats, changed, nil
}

func (e *Engine) upsertValidation(ctx context.Context, v *model.ValidationRecord) error {
	if err := e.store.UpsertValidation(ctx, v); err != nil {
		return err
	}
	if e.mirror != nil {
		if err := e.mirror.UpsertValidation(ctx, v); err != nil {
			zap.L().Warn("validation mirror write failed",
				zap.String("opportunity", v.OpportunityID), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) markNotified(ctx context.Context, id string, at time.Time) error {
	if err := e.store.MarkNotified(ctx, id, at); err != nil {
		return err
	}
	if e.mirror != nil {
		if err := e.mirror.MarkNotified(ctx, id, at); err != nil {
			zap.L().Warn("validation mirror mark failed",
				zap.String("opportunity", id), zap.Error(err))
		}
	}
	return nil
}

func opportunityRow(op store.Opportunity) Row {
	row := Row{
		OpportunityID: op.ID,
		Title:         op.Title,
		VenueName:     op.VenueName,
		City:          op.City,
		Country:       op.Country,
		Segment:       op.MarketSegment,
		Phase:         string(op.ProjectPhase),
		Score:         op.Score,
		Reason:        op.Reason,
		URL:           op.URL,
		DupClass:      string(op.DupClass),
		SuspectedOf:   op.DupMatch,
		Decision:      string(model.DecisionPending),
	}
	return row
}

func validationFromRow(row Row, decision model.Decision) *model.ValidationRecord {
	v := &model.ValidationRecord{
		OpportunityID: row.OpportunityID,
		Decision:      decision,
		Validator:     row.Validator,
		Comment:       row.Comment,
	}
	if row.DecidedAt != "" {
		if t, err := time.Parse("2006-01-02", row.DecidedAt); err == nil {
			v.DecidedAt = &t
		}
	}
	if v.DecidedAt == nil {
		now := time.Now().UTC()
		v.DecidedAt = &now
	}
	return v
}

func decisionBody(row Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Venue: %s\n", row.VenueName)
	if row.City != "" || row.Country != "" {
		fmt.Fprintf(&b, "Location: %s, %s\n", row.City, row.Country)
	}
	fmt.Fprintf(&b, "Phase: %s\nScore: %d\nReason: %s\nSource: %s\n",
		row.Phase, row.Score, row.Reason, row.URL)
	fmt.Fprintf(&b, "Decision: %s\n", row.Decision)
	if row.Validator != "" {
		fmt.Fprintf(&b, "Decided by: %s\n", row.Validator)
	}
	if row.Comment != "" {
		fmt.Fprintf(&b, "Comment: %s\n", row.Comment)
	}
	return b.String()
}
