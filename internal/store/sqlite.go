package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-av/leadscan/internal/model"
	"github.com/meridian-av/leadscan/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It serves as the
// secondary durable store (local validation mirror) and as the full store
// for single-host deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	title        TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	published_at DATETIME NOT NULL,
	language     TEXT NOT NULL DEFAULT '',
	origin       TEXT NOT NULL DEFAULT '',
	ingested_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS records (
	id             TEXT PRIMARY KEY REFERENCES events(id),
	fields         TEXT NOT NULL,
	enriched_at    DATETIME NOT NULL,
	score          INTEGER,
	is_opportunity BOOLEAN,
	reason         TEXT,
	analyzed_at    DATETIME
);

CREATE TABLE IF NOT EXISTS dup_relations (
	record_id      TEXT PRIMARY KEY REFERENCES records(id),
	classification TEXT NOT NULL,
	match_id       TEXT,
	similarity     REAL NOT NULL,
	batch_id       TEXT NOT NULL,
	classified_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS validations (
	opportunity_id TEXT PRIMARY KEY,
	decision       TEXT NOT NULL DEFAULT 'pending',
	validator      TEXT NOT NULL DEFAULT '',
	decided_at     DATETIME,
	comment        TEXT NOT NULL DEFAULT '',
	notified_at    DATETIME
);

CREATE TABLE IF NOT EXISTS quarantine (
	id             TEXT PRIMARY KEY,
	event          TEXT NOT NULL,
	reason         TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_stage   TEXT NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	counts      TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_records_analyzed_at ON records(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_dup_relations_class ON dup_relations(classification);
CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertRawEvent(ctx context.Context, ev *model.RawEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, url, title, body, published_at, language, origin, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.URL, ev.Title, ev.Body, ev.PublishedAt.UTC(), ev.Language, ev.Origin, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert event %s", ev.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, title, body, published_at, language, origin FROM events WHERE id = ?`, id)
	var ev model.RawEvent
	err := row.Scan(&ev.ID, &ev.URL, &ev.Title, &ev.Body, &ev.PublishedAt, &ev.Language, &ev.Origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get event %s", id)
	}
	return &ev, nil
}

func (s *SQLiteStore) ListPendingEvents(ctx context.Context, limit int) ([]model.RawEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin
		 FROM events e
		 LEFT JOIN records r ON r.id = e.id
		 LEFT JOIN quarantine q ON q.id = e.id
		 WHERE r.id IS NULL AND q.id IS NULL
		 ORDER BY e.published_at
		 LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending events")
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var ev model.RawEvent
		if err := rows.Scan(&ev.ID, &ev.URL, &ev.Title, &ev.Body, &ev.PublishedAt, &ev.Language, &ev.Origin); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending event")
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pending events")
}

func (s *SQLiteStore) UpsertEnriched(ctx context.Context, rec *model.EnrichedRecord) error {
	fields, err := json.Marshal(rec.BusinessFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, fields, enriched_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET fields = excluded.fields, enriched_at = excluded.enriched_at`,
		rec.ID, string(fields), rec.EnrichedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert enriched %s", rec.ID)
}

func (s *SQLiteStore) ListUnscored(ctx context.Context, limit int) ([]model.EnrichedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin, r.fields, r.enriched_at
		 FROM records r JOIN events e ON e.id = r.id
		 WHERE r.analyzed_at IS NULL
		 ORDER BY e.published_at
		 LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unscored")
	}
	defer rows.Close()

	var out []model.EnrichedRecord
	for rows.Next() {
		var rec model.EnrichedRecord
		var fields string
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Body, &rec.PublishedAt,
			&rec.Language, &rec.Origin, &fields, &rec.EnrichedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unscored")
		}
		if err := json.Unmarshal([]byte(fields), &rec.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode fields %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate unscored")
}

func (s *SQLiteStore) SaveScore(ctx context.Context, id string, res model.ScoredRecord) error {
	r, err := s.db.ExecContext(ctx,
		`UPDATE records SET score = ?, is_opportunity = ?, reason = ?, analyzed_at = ? WHERE id = ?`,
		res.Score, res.IsOpportunity, res.Reason, res.AnalyzedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save score %s", id)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: save score: record %s not found", id)
	}
	return nil
}

const sqliteScoredSelect = `
SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin,
       r.fields, r.enriched_at, r.score, r.is_opportunity, r.reason, r.analyzed_at
FROM records r JOIN events e ON e.id = r.id`

func (s *SQLiteStore) ListCohort(ctx context.Context, since time.Time, limit int) ([]model.ScoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteScoredSelect+`
		 LEFT JOIN dup_relations d ON d.record_id = r.id
		 WHERE r.analyzed_at IS NOT NULL AND d.record_id IS NULL AND r.analyzed_at >= ?
		 ORDER BY e.published_at
		 LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cohort")
	}
	return scanScoredSQLite(rows, "cohort")
}

func (s *SQLiteStore) ListHistorical(ctx context.Context, since time.Time) ([]model.ScoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteScoredSelect+`
		 JOIN dup_relations d ON d.record_id = r.id
		 WHERE r.analyzed_at >= ?
		 ORDER BY e.published_at`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list historical")
	}
	return scanScoredSQLite(rows, "historical")
}

func scanScoredSQLite(rows *sql.Rows, what string) ([]model.ScoredRecord, error) {
	defer rows.Close()

	var out []model.ScoredRecord
	for rows.Next() {
		var rec model.ScoredRecord
		var fields string
		if err := rows.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.Body, &rec.PublishedAt,
			&rec.Language, &rec.Origin, &fields, &rec.EnrichedAt,
			&rec.Score, &rec.IsOpportunity, &rec.Reason, &rec.AnalyzedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", what)
		}
		if err := json.Unmarshal([]byte(fields), &rec.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode fields %s", rec.ID)
		}
		out = append(out, rec)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", what)
}

// SaveRelations inserts relations write-once: an already-classified record
// keeps its original relation.
func (s *SQLiteStore) SaveRelations(ctx context.Context, rels []model.DuplicateRelation) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var saved int64
	for _, r := range rels {
		var matchID any
		if r.MatchID != "" {
			matchID = r.MatchID
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO dup_relations (record_id, classification, match_id, similarity, batch_id, classified_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (record_id) DO NOTHING`,
			r.RecordID, string(r.Classification), matchID, r.Similarity, r.BatchID, r.ClassifiedAt.UTC(),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save relation %s", r.RecordID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		saved += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit relations")
	}
	return saved, nil
}

func (s *SQLiteStore) ListOpportunities(ctx context.Context) ([]Opportunity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT e.id, e.url, e.title, e.body, e.published_at, e.language, e.origin,
       r.fields, r.enriched_at, r.score, r.is_opportunity, r.reason, r.analyzed_at,
       COALESCE(d.classification, 'unique'), COALESCE(d.match_id, '')
FROM records r
JOIN events e ON e.id = r.id
LEFT JOIN dup_relations d ON d.record_id = r.id
WHERE r.is_opportunity = 1
  AND (d.classification IS NULL OR d.classification <> 'duplicate')
ORDER BY r.score DESC, e.published_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list opportunities")
	}
	defer rows.Close()

	var out []Opportunity
	for rows.Next() {
		var op Opportunity
		var fields, class string
		if err := rows.Scan(&op.ID, &op.URL, &op.Title, &op.Body, &op.PublishedAt,
			&op.Language, &op.Origin, &fields, &op.EnrichedAt,
			&op.Score, &op.IsOpportunity, &op.Reason, &op.AnalyzedAt,
			&class, &op.DupMatch); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan opportunity")
		}
		if err := json.Unmarshal([]byte(fields), &op.BusinessFields); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode fields %s", op.ID)
		}
		op.DupClass = model.DuplicateClass(class)
		out = append(out, op)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate opportunities")
}

func (s *SQLiteStore) UpsertValidation(ctx context.Context, v *model.ValidationRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO validations (opportunity_id, decision, validator, decided_at, comment)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (opportunity_id) DO UPDATE SET
			decision = excluded.decision,
			validator = excluded.validator,
			decided_at = excluded.decided_at,
			comment = excluded.comment`,
		v.OpportunityID, string(v.Decision), v.Validator, v.DecidedAt, v.Comment,
	)
	return eris.Wrapf(err, "sqlite: upsert validation %s", v.OpportunityID)
}

func (s *SQLiteStore) GetValidation(ctx context.Context, opportunityID string) (*model.ValidationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT opportunity_id, decision, validator, decided_at, comment, notified_at
		 FROM validations WHERE opportunity_id = ?`, opportunityID)
	var v model.ValidationRecord
	var decision string
	err := row.Scan(&v.OpportunityID, &decision, &v.Validator, &v.DecidedAt, &v.Comment, &v.NotifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get validation %s", opportunityID)
	}
	v.Decision = model.Decision(decision)
	return &v, nil
}

func (s *SQLiteStore) MarkNotified(ctx context.Context, opportunityID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE validations SET notified_at = ? WHERE opportunity_id = ? AND notified_at IS NULL`,
		at.UTC(), opportunityID,
	)
	return eris.Wrapf(err, "sqlite: mark notified %s", opportunityID)
}

func (s *SQLiteStore) AddQuarantine(ctx context.Context, e *resilience.QuarantineEntry) error {
	event, err := json.Marshal(e.Event)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quarantined event")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quarantine (id, event, reason, error_type, failed_stage, retry_count, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			reason = excluded.reason,
			error_type = excluded.error_type,
			failed_stage = excluded.failed_stage,
			retry_count = quarantine.retry_count + 1,
			last_failed_at = excluded.last_failed_at`,
		e.ID, string(event), e.Reason, e.ErrorType, e.FailedStage, e.RetryCount, e.CreatedAt.UTC(), e.LastFailedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: quarantine %s", e.ID)
}

func (s *SQLiteStore) ListQuarantine(ctx context.Context, limit int) ([]resilience.QuarantineEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, reason, error_type, failed_stage, retry_count, created_at, last_failed_at
		 FROM quarantine ORDER BY last_failed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantine")
	}
	defer rows.Close()

	var out []resilience.QuarantineEntry
	for rows.Next() {
		var e resilience.QuarantineEntry
		var event string
		if err := rows.Scan(&e.ID, &event, &e.Reason, &e.ErrorType, &e.FailedStage,
			&e.RetryCount, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantine")
		}
		if err := json.Unmarshal([]byte(event), &e.Event); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode quarantined event %s", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate quarantine")
}

func (s *SQLiteStore) RemoveQuarantine(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: remove quarantine %s", id)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counts map[string]int, runErr string) error {
	var countsJSON any
	if counts != nil {
		b, err := json.Marshal(counts)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run counts")
		}
		countsJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counts = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), countsJSON, runErr, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "sqlite: finish run %s", runID)
}
