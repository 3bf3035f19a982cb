package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/cierreops/cierre-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses, narrowed so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_job": `INSERT INTO jobs (document_type, id, state, file_label, error_detail, counts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (document_type) DO UPDATE SET
			id = EXCLUDED.id, state = EXCLUDED.state, file_label = EXCLUDED.file_label,
			error_detail = EXCLUDED.error_detail, counts = EXCLUDED.counts,
			created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`,
	"get_job": `SELECT document_type, id, state, file_label, error_detail, counts, created_at, updated_at
		 FROM jobs WHERE document_type = $1`,
	"delete_job": `DELETE FROM jobs WHERE document_type = $1`,
	"append_activity": `INSERT INTO activity_log (id, client_id, category, action, description, detail, cierre_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	document_type TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	state         TEXT NOT NULL,
	file_label    TEXT NOT NULL DEFAULT '',
	error_detail  TEXT NOT NULL DEFAULT '',
	counts        JSONB,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_id   TEXT NOT NULL,
	category    TEXT NOT NULL,
	action      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	cierre_id   TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_activity_category ON activity_log(category);
CREATE INDEX IF NOT EXISTS idx_activity_cierre ON activity_log(cierre_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveJob(ctx context.Context, job *model.Job) error {
	var countsJSON []byte
	if job.Counts != nil {
		raw, err := json.Marshal(job.Counts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal counts")
		}
		countsJSON = raw
	}

	_, err := s.pool.Exec(ctx, preparedStatements["save_job"],
		string(job.DocumentType), job.ID, string(job.State), job.FileLabel,
		job.ErrorDetail, countsJSON, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save job %s", job.DocumentType)
}

func (s *PostgresStore) GetJob(ctx context.Context, docType model.DocumentType) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_job"], string(docType))
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", docType)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_type, id, state, file_label, error_detail, counts, created_at, updated_at
		 FROM jobs ORDER BY document_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) DeleteJob(ctx context.Context, docType model.DocumentType) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["delete_job"], string(docType))
	if err != nil {
		return eris.Wrapf(err, "postgres: delete job %s", docType)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", docType)
	}
	return nil
}

func (s *PostgresStore) AppendActivity(ctx context.Context, entry model.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, preparedStatements["append_activity"],
		entry.ID, entry.ClientID, entry.Category, entry.Action,
		entry.Description, entry.Detail, entry.CierreID, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]model.ActivityEntry, error) {
	query := `SELECT id, client_id, category, action, description, detail, COALESCE(cierre_id, ''), created_at
	          FROM activity_log WHERE 1=1`
	var args []any

	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if filter.CierreID != "" {
		args = append(args, filter.CierreID)
		query += fmt.Sprintf(` AND cierre_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activity")
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Category, &e.Action,
			&e.Description, &e.Detail, &e.CierreID, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

func scanPgJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var countsJSON []byte

	err := row.Scan(&j.DocumentType, &j.ID, &j.State, &j.FileLabel,
		&j.ErrorDetail, &countsJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &j.Counts); err != nil {
			return nil, eris.Wrap(err, "unmarshal counts")
		}
	}
	return &j, nil
}
