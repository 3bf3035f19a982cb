package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/cierreops/cierre-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS jobs (
	document_type TEXT PRIMARY KEY,
	id            TEXT NOT NULL,
	state         TEXT NOT NULL,
	file_label    TEXT NOT NULL DEFAULT '',
	error_detail  TEXT NOT NULL DEFAULT '',
	counts        TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity_log (
	id          TEXT PRIMARY KEY,
	client_id   TEXT NOT NULL,
	category    TEXT NOT NULL,
	action      TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	cierre_id   TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_activity_category ON activity_log(category);
CREATE INDEX IF NOT EXISTS idx_activity_cierre ON activity_log(cierre_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.Job) error {
	countsJSON, err := marshalCounts(job.Counts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (document_type, id, state, file_label, error_detail, counts, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_type) DO UPDATE SET
			id = excluded.id,
			state = excluded.state,
			file_label = excluded.file_label,
			error_detail = excluded.error_detail,
			counts = excluded.counts,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		string(job.DocumentType), job.ID, string(job.State), job.FileLabel,
		job.ErrorDetail, countsJSON, job.CreatedAt, job.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save job %s", job.DocumentType)
}

func (s *SQLiteStore) GetJob(ctx context.Context, docType model.DocumentType) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_type, id, state, file_label, error_detail, counts, created_at, updated_at
		 FROM jobs WHERE document_type = ?`,
		string(docType),
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", docType)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_type, id, state, file_label, error_detail, counts, created_at, updated_at
		 FROM jobs ORDER BY document_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, docType model.DocumentType) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE document_type = ?`,
		string(docType),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete job %s", docType)
	}
	return checkRowsAffected(res, "job", string(docType))
}

func (s *SQLiteStore) AppendActivity(ctx context.Context, entry model.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, client_id, category, action, description, detail, cierre_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClientID, entry.Category, entry.Action,
		entry.Description, entry.Detail, nullable(entry.CierreID), entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, filter ActivityFilter) ([]model.ActivityEntry, error) {
	query := `SELECT id, client_id, category, action, description, detail, cierre_id, created_at
	          FROM activity_log WHERE 1=1`
	var args []any

	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.CierreID != "" {
		query += ` AND cierre_id = ?`
		args = append(args, filter.CierreID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activity")
	}
	defer rows.Close()

	var entries []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var cierreID sql.NullString
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Category, &e.Action,
			&e.Description, &e.Detail, &cierreID, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		e.CierreID = cierreID.String
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var countsJSON sql.NullString

	err := row.Scan(&j.DocumentType, &j.ID, &j.State, &j.FileLabel,
		&j.ErrorDetail, &countsJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &j.Counts); err != nil {
			return nil, eris.Wrap(err, "unmarshal counts")
		}
	}
	return &j, nil
}

func marshalCounts(counts map[string]int) (sql.NullString, error) {
	if counts == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(counts)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
