package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	document_ref TEXT NOT NULL,
	kind         TEXT NOT NULL,
	claim_type   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	extraction   JSONB,
	analysis     JSONB,
	score        JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	ref        TEXT PRIMARY KEY,
	media_type TEXT NOT NULL,
	data       BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, tenant_id, document_ref, kind, claim_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		created.ID, created.TenantID, created.DocumentRef, string(created.Kind),
		created.ClaimType, string(created.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &created, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, document_ref, kind, claim_type, status, extraction, analysis, score, error, created_at, updated_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT id, tenant_id, document_ref, kind, claim_type, status, extraction, analysis, score, error, created_at, updated_at
	          FROM runs WHERE ($1 = '' OR status = $1) AND ($2 = '' OR tenant_id = $2)
	          ORDER BY created_at DESC LIMIT $3 OFFSET $4`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, string(filter.Status), filter.TenantID, limit, filter.Offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanPGRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list runs")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) SetStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) ResetRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, extraction = NULL, analysis = NULL, score = NULL, error = '', updated_at = $2 WHERE id = $3`,
		string(model.RunStatusProcessing), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset run %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) SavePartial(ctx context.Context, runID string, extraction *model.ExtractionResult) error {
	data, err := json.Marshal(extraction)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET extraction = $1, updated_at = $2 WHERE id = $3`,
		string(data), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save partial %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) SaveFinal(ctx context.Context, runID string, status model.RunStatus, analysis *model.EnrichedAnalysis, score *model.ScoreResult, errMsg string) error {
	analysisJSON, scoreJSON, err := marshalFinal(analysis, score)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, analysis = $2, score = $3, error = $4, updated_at = $5 WHERE id = $6`,
		string(status), analysisJSON, scoreJSON, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save final %s", runID)
	}
	return checkTag(tag, runID)
}

func (s *PostgresStore) HasCompletedRun(ctx context.Context, tenantID string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM runs WHERE tenant_id = $1 AND status = $2`,
		tenantID, string(model.RunStatusComplete),
	).Scan(&count)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has completed run %s", tenantID)
	}
	return count > 0, nil
}

func (s *PostgresStore) PutDocument(ctx context.Context, ref, mediaType string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (ref, media_type, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (ref) DO UPDATE SET media_type = EXCLUDED.media_type, data = EXCLUDED.data`,
		ref, mediaType, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put document %s", ref)
}

func (s *PostgresStore) LoadDocument(ctx context.Context, ref string) ([]byte, string, error) {
	var data []byte
	var mediaType string
	err := s.pool.QueryRow(ctx,
		`SELECT data, media_type FROM documents WHERE ref = $1`, ref,
	).Scan(&data, &mediaType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", eris.Wrapf(err, "postgres: load document %s", ref)
	}
	return data, mediaType, nil
}

func scanPGRun(row scanner) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var kind, status string
	var extraction, analysis, score []byte

	err := row.Scan(&run.ID, &run.TenantID, &run.DocumentRef, &kind, &run.ClaimType,
		&status, &extraction, &analysis, &score, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.Kind = model.DocumentKind(kind)
	run.Status = model.RunStatus(status)

	if err := unmarshalBytes(extraction, &run.Extraction); err != nil {
		return nil, err
	}
	if err := unmarshalBytes(analysis, &run.Analysis); err != nil {
		return nil, err
	}
	if err := unmarshalBytes(score, &run.Score); err != nil {
		return nil, err
	}
	return &run, nil
}

func unmarshalBytes[T any](data []byte, out **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "postgres: unmarshal run column")
	}
	*out = &v
	return nil
}

func checkTag(tag pgconn.CommandTag, runID string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}
