package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-av/leadscan/internal/db"
	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

// PostgresStore implements Store using pgxpool. It serves as the primary
// durable store for opportunity facts.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	language     TEXT NOT NULL DEFAULT '',
	origin       TEXT NOT NULL DEFAULT '',
	ingested_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS records (
	id             TEXT PRIMARY KEY REFERENCES events(id),
	fields         JSONB NOT NULL,
	enriched_at    TIMESTAMPTZ NOT NULL,
	score          INTEGER,
	is_opportunity BOOLEAN,
	reason         TEXT,
	analyzed_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS dup_relations (
	record_id      TEXT PRIMARY KEY REFERENCES records(id),
	classification TEXT NOT NULL,
	match_id       TEXT,
	similarity     DOUBLE PRECISION NOT NULL,
	batch_id       TEXT NOT NULL,
	classified_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS validations (
	opportunity_id TEXT PRIMARY KEY,
	decision       TEXT NOT NULL DEFAULT 'pending',
	validator      TEXT NOT NULL DEFAULT '',
	decided_at     TIMESTAMPTZ,
	comment        TEXT NOT NULL DEFAULT '',
	notified_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS quarantine (
	id             TEXT PRIMARY KEY,
	event          JSONB NOT NULL,
	reason         TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_stage   TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	last_failed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	counts      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_records_analyzed_at ON records(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_records_is_opportunity ON records(is_opportunity);
CREATE INDEX IF NOT EXISTS idx_dup_relations_class ON dup_relations(classification);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertRawEvent(ctx context.Context, ev *model.RawEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, url, title, body, published_at, language, origin, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.URL, ev.Title, ev.Body, ev.PublishedAt.UTC(), ev.Language, ev.Origin, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert event %s", ev.ID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, title, body, published_at, language, origin FROM events WHERE id = $1`, id)
	var ev model.RawEvent
	err := row.Scan(&ev.ID, &ev.URL, &ev.Title, &ev.Body, &ev.PublishedAt, &ev.Language, &ev.Origin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get event %s", id)
	}
	return &ev, nil
}

func (s *PostgresStore) ListPendingEvents(ctx context.Context, limit int) ([]model.RawEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin
		 FROM events e
		 LEFT JOIN records r ON r.id = e.id
		 LEFT JOIN quarantine q ON q.id = e.id
		 WHERE r.id IS NULL AND q.id IS NULL
		 ORDER BY e.published_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending events")
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var ev model.RawEvent
		if err := rows.Scan(&ev.ID, &ev.URL, &ev.Title, &ev.Body, &ev.PublishedAt, &ev.Language, &ev.Origin); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate pending events")
}

func (s *PostgresStore) UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) error {
	fields, err := json.Marshal(rec.BusinessFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	// Enrichment owns only its columns: analysis columns are untouched on
	// conflict so re-processing never erases a downstream verdict.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, fields, enriched_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET fields = EXCLUDED.fields, enriched_at = EXCLUDED.enriched_at`,
		rec.ID, fields, rec.EnrichedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert enriched %s", rec.ID)
}

func (s *PostgresStore) ListUnscored(ctx context.Context, limit int) ([]model.EnrichedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin, r.fields, r.enriched_at
		 FROM records r JOIN events e ON e.id = r.id
		 WHERE r.analyzed_at IS NULL
		 ORDER BY e.published_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unscored")
	}
	defer rows.Close()

	var out []model.EnrichedRecord
	for rows.Next() {
		var rec model.EnrichedRecord
		var fields []byte
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Body, &rec.PublishedAt,
			&rec.Language, &rec.Origin, &fields, &rec.EnrichedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unscored")
		}
		if err := json.Unmarshal(fields, &rec.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode fields %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate unscored")
}

func (s *PostgresStore) SaveScore(ctx context.Context, id string, res model.ScoredRecord) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE records SET score = $1, is_opportunity = $2, reason = $3, analyzed_at = $4 WHERE id = $5`,
		res.Score, res.IsOpportunity, res.Reason, res.AnalyzedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save score %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: save score: record %s not found", id)
	}
	return nil
}

const scoredSelect = `
SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin,
       r.fields, r.enriched_at, r.score, r.is_opportunity, r.reason, r.analyzed_at
FROM records r JOIN events e ON e.id = r.id`

func (s *PostgresStore) ListCohort(ctx context.Context, since time.Time, limit int) ([]model.ScoredRecord, error) {
	rows, err := s.pool.Query(ctx, scoredSelect+`
		 LEFT JOIN dup_relations d ON d.record_id = r.id
		 WHERE r.analyzed_at IS NOT NULL AND d.record_id IS NULL AND r.analyzed_at >= $1
		 ORDER BY e.published_at
		 LIMIT $2`, since.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cohort")
	}
	return scanScored(rows, "cohort")
}

func (s *PostgresStore) ListHistorical(ctx context.Context, since time.Time) ([]model.ScoredRecord, error) {
	rows, err := s.pool.Query(ctx, scoredSelect+`
		 JOIN dup_relations d ON d.record_id = r.id
		 WHERE r.analyzed_at >= $1
		 ORDER BY e.published_at`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list historical")
	}
	return scanScored(rows, "historical")
}

func scanScored(rows pgx.Rows, what string) ([]model.ScoredRecord, error) {
	defer rows.Close()

	var out []model.ScoredRecord
	for rows.Next() {
		var rec model.ScoredRecord
		var fields []byte
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Body, &rec.PublishedAt,
			&rec.Language, &rec.Origin, &fields, &rec.EnrichedAt,
			&rec.Score, &rec.IsOpportunity, &rec.Reason, &rec.AnalyzedAt); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", what)
		}
		if err := json.Unmarshal(fields, &rec.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode fields %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", what)
}

// SaveRelations persists dedup relations write-once via the shared bulk
// upsert with ON CONFLICT DO NOTHING: an already-classified record is never
// reclassified.
func (s *PostgresStore) SaveRelations(ctx context.Context, rels []model.DuplicateRelation) (int64, error) {
	rows := make([][]any, len(rels))
	for i, r := range rels {
		var matchID any
		if r.MatchID != "" {
			matchID = r.MatchID
		}
		rows[i] = []any{r.RecordID, string(r.Classification), matchID, r.Similarity, r.BatchID, r.ClassifiedAt.UTC()}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "dup_relations",
		Columns:      []string{"record_id", "classification", "match_id", "similarity", "batch_id", "classified_at"},
		ConflictKeys: []string{"record_id"},
		DoNothing:    true,
	}, rows)
	return n, eris.Wrap(err, "postgres: save relations")
}

func (s *PostgresStore) ListOpportunities(ctx context.Context) ([]Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin,
       r.fields, r.enriched_at, r.score, r.is_opportunity, r.reason, r.analyzed_at,
       COALESCE(d.classification, 'unique'), COALESCE(d.match_id, '')
FROM records r
JOIN events e ON e.id = r.id
LEFT JOIN dup_relations d ON d.record_id = r.id
WHERE r.is_opportunity = TRUE
  AND (d.classification IS NULL OR d.classification <> 'duplicate')
ORDER BY r.score DESC, e.published_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list opportunities")
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var op Opportunity
		var fields []byte
		var class string
		if err := rows.Scan(&op.ID, &op.URL, &op.Title, &op.Body, &op.PublishedAt,
			&op.Language, &op.Origin, &fields, &op.EnrichedAt,
			&op.Score, &op.IsOpportunity, &op.Reason, &op.AnalyzedAt,
			&class, &op.DupMatch); err != nil {
			return nil, eris.Wrap(err, "postgres: scan opportunity")
		}
		if err := json.Unmarshal(fields, &op.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode fields %s", op.ID)
		}
		op.DupClass = model.DuplicateClass(class)
		out = append(out, op)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate opportunities")
}

func (s *PostgresStore) UpsertValidation(ctx context.Context, v *model.ValidationRecord) error {
	// notified_at is owned by MarkNotified: decision upserts never clear it.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO validations (opportunity_id, decision, validator, decided_at, comment)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (opportunity_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			validator = EXCLUDED.validator,
			decided_at = EXCLUDED.decided_at,
			comment = EXCLUDED.comment`,
		v.OpportunityID, string(v.Decision), v.Validator, v.DecidedAt, v.Comment,
	)
	return eris.Wrapf(err, "postgres: upsert validation %s", v.OpportunityID)
}

func (s *PostgresStore) GetValidation(ctx context.Context, opportunityID string) (*model.ValidationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT opportunity_id, decision, validator, decided_at, comment, notified_at
		 FROM validations WHERE opportunity_id = $1`, opportunityID)
	var v model.ValidationRecord
	var decision string
	err := row.Scan(&v.OpportunityID, &decision, &v.Validator, &v.DecidedAt, &v.Comment, &v.NotifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get validation %s", opportunityID)
	}
	v.Decision = model.Decision(decision)
	return &v, nil
}

func (s *PostgresStore) MarkNotified(ctx context.Context, opportunityID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE validations SET notified_at = $1 WHERE opportunity_id = $2 AND notified_at IS NULL`,
		at.UTC(), opportunityID,
	)
	return eris.Wrapf(err, "postgres: mark notified %s", opportunityID)
}

func (s *PostgresStore) AddQuarantine(ctx context.Context, e *resilience.QuarantineEntry) error {
	event, err := json.Marshal(e.Event)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quarantined event")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quarantine (id, event, reason, error_type, failed_stage, retry_count, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			reason = EXCLUDED.reason,
			error_type = EXCLUDED.error_type,
			failed_stage = EXCLUDED.failed_stage,
			retry_count = quarantine.retry_count + 1,
			last_failed_at = EXCLUDED.last_failed_at`,
		e.ID, event, e.Reason, e.ErrorType, e.FailedStage, e.RetryCount, e.CreatedAt.UTC(), e.LastFailedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: quarantine %s", e.ID)
}

func (s *PostgresStore) ListQuarantine(ctx context.Context, limit int) ([]resilience.QuarantineEntry, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event, reason, error_type, failed_stage, retry_count, created_at, last_failed_at
		 FROM quarantine ORDER BY last_failed_at DESC LIMIT $1`, lim)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantine")
	}
	defer rows.Close()

	var out []resilience.QuarantineEntry
	for rows.Next() {
		var e resilience.QuarantineEntry
		var event []byte
		if err := rows.Scan(&e.ID, &event, &e.Reason, &e.ErrorType, &e.FailedStage,
			&e.RetryCount, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantine")
		}
		if err := json.Unmarshal(event, &e.Event); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode quarantined event %s", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate quarantine")
}

func (s *PostgresStore) RemoveQuarantine(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM quarantine WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: remove quarantine %s", id)
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts map[string]int, runErr string) error {
	var countsJSON any
	if counts != nil {
		b, err := json.Marshal(counts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run counts")
		}
		countsJSON = b
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, counts = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), countsJSON, runErr, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "postgres: finish run %s", runID)
}
