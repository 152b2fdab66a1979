package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clearclaim/docintel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	document_ref TEXT NOT NULL,
	kind         TEXT NOT NULL,
	claim_type   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	extraction   TEXT,
	analysis     TEXT,
	score        TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS documents (
	ref        TEXT PRIMARY KEY,
	media_type TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	created := *run
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Status == "" {
		created.Status = model.RunStatusPending
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, tenant_id, document_ref, kind, claim_type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.TenantID, created.DocumentRef, string(created.Kind),
		created.ClaimType, string(created.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &created, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, document_ref, kind, claim_type, status, extraction, analysis, score, error, created_at, updated_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, tenant_id, document_ref, kind, claim_type, status, extraction, analysis, score, error, created_at, updated_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SetStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) ResetRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, extraction = NULL, analysis = NULL, score = NULL, error = '', updated_at = ? WHERE id = ?`,
		string(model.RunStatusProcessing), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SavePartial(ctx context.Context, runID string, extraction *model.ExtractionResult) error {
	data, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET extraction = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save partial %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SaveFinal(ctx context.Context, runID string, status model.RunStatus, analysis *model.EnrichedAnalysis, score *model.ScoreResult, errMsg string) error {
	analysisJSON, scoreJSON, err := marshalFinal(analysis, score)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, analysis = ?, score = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), analysisJSON, scoreJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save final %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) HasCompletedRun(ctx context.Context, tenantID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs WHERE tenant_id = ? AND status = ?`,
		tenantID, string(model.RunStatusComplete),
	).Scan(&count)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has completed run %s", tenantID)
	}
	return count > 0, nil
}

func (s *SQLiteStore) PutDocument(ctx context.Context, ref, mediaType string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (ref, media_type, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET media_type = excluded.media_type, data = excluded.data`,
		ref, mediaType, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put document %s", ref)
}

func (s *SQLiteStore) LoadDocument(ctx context.Context, ref string) ([]byte, string, error) {
	var data []byte
	var mediaType string
	err := s.db.QueryRowContext(ctx,
		`SELECT data, media_type FROM documents WHERE ref = ?`, ref,
	).Scan(&data, &mediaType)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", eris.Wrapf(err, "sqlite: load document %s", ref)
	}
	return data, mediaType, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRun.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var kind, status string
	var extraction, analysis, score sql.NullString

	err := row.Scan(&run.ID, &run.TenantID, &run.DocumentRef, &kind, &run.ClaimType,
		&status, &extraction, &analysis, &score, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	run.Kind = model.DocumentKind(kind)
	run.Status = model.RunStatus(status)

	if err := unmarshalInto(extraction, &run.Extraction); err != nil {
		return nil, err
	}
	if err := unmarshalInto(analysis, &run.Analysis); err != nil {
		return nil, err
	}
	if err := unmarshalInto(score, &run.Score); err != nil {
		return nil, err
	}
	return &run, nil
}

func unmarshalInto[T any](col sql.NullString, out **T) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal run column")
	}
	*out = &v
	return nil
}

func marshalFinal(analysis *model.EnrichedAnalysis, score *model.ScoreResult) (analysisJSON, scoreJSON any, err error) {
	if analysis != nil {
		data, mErr := json.Marshal(analysis)
		if mErr != nil {
			return nil, nil, eris.Wrap(mErr, "store: marshal analysis")
		}
		analysisJSON = string(data)
	}
	if score != nil {
		data, mErr := json.Marshal(score)
		if mErr != nil {
			return nil, nil, eris.Wrap(mErr, "store: marshal score")
		}
		scoreJSON = string(data)
	}
	return analysisJSON, scoreJSON, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}
