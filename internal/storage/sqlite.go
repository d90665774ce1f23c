package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cgr/internal/domain"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    total_cases INTEGER NOT NULL,
    group_count INTEGER NOT NULL,
    counts      TEXT NOT NULL DEFAULT '{}',
    warnings    INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createReportsTable = `
CREATE TABLE IF NOT EXISTS reports (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL REFERENCES runs(id),
    case_id     TEXT NOT NULL,
    phase       TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    status      TEXT NOT NULL,
    was_xfail   TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    started_at  DATETIME NOT NULL
)`

const createReportsIndex = `CREATE INDEX IF NOT EXISTS idx_reports_run ON reports(run_id, id)`

// Compile-time interface satisfaction check.
var _ History = (*SQLiteStore)(nil)

// SQLiteStore implements History using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout = 5000"}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	for _, stmt := range []string{createRunsTable, createReportsTable, createReportsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate history database: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	counts, err := json.Marshal(run.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, total_cases, group_count, counts, warnings, duration_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.TotalCases, run.Groups, string(counts), run.Warnings,
		run.DurationMS, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertReports appends the phase reports of a run in one transaction.
func (s *SQLiteStore) InsertReports(ctx context.Context, runID string, reports []domain.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO reports (run_id, case_id, phase, outcome, status, was_xfail, message, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert report: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		start := r.Start
		if start.IsZero() {
			start = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			runID, r.CaseID, string(r.Phase), string(r.Outcome), string(r.Status()),
			r.WasXFail, r.Message, r.Duration.Milliseconds(), start.UTC(),
		); err != nil {
			return fmt.Errorf("insert report %s/%s: %w", r.CaseID, r.Phase, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reports: %w", err)
	}
	return nil
}

// FinishRun records the final status and summary of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, meta domain.RunMeta) error {
	counts, err := json.Marshal(meta.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total_cases = ?, group_count = ?, counts = ?, warnings = ?,
			duration_ms = ?, finished_at = ? WHERE id = ?`,
		status, meta.TotalCases, meta.Groups, string(counts), meta.Warnings,
		int64(meta.DurationSeconds*1000), time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRun = `SELECT id, status, total_cases, group_count, counts, warnings, duration_ms, started_at, finished_at FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var counts string
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.Status, &r.TotalCases, &r.Groups, &counts, &r.Warnings,
		&r.DurationMS, &r.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Counts = make(map[domain.Status]int)
	if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
		return nil, fmt.Errorf("parse counts of run %s: %w", r.ID, err)
	}
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a page of runs, newest first, along with the total count.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, total, nil
}

// ListReports returns the reports of a run in the order they were logged.
func (s *SQLiteStore) ListReports(ctx context.Context, runID string) ([]ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, case_id, phase, outcome, status, was_xfail, message, duration_ms, started_at
		FROM reports WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var r ReportRecord
		var phase, status string
		if err := rows.Scan(&r.ID, &r.RunID, &r.CaseID, &phase, &r.Outcome, &status,
			&r.WasXFail, &r.Message, &r.DurationMS, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.Phase = domain.Phase(phase)
		r.Status = domain.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// Stats returns aggregate statistics over every recorded run.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		RunsByStatus:  make(map[string]int),
		CasesByStatus: make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(duration_ms) FROM runs`).Scan(&st.Runs, &avg); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if avg.Valid {
		st.AvgDurationMS = avg.Float64
	}

	if err := groupCount(ctx, s.db, `SELECT status, COUNT(*) FROM runs GROUP BY status`, st.RunsByStatus); err != nil {
		return nil, err
	}
	if err := groupCount(ctx, s.db,
		`SELECT status, COUNT(*) FROM reports WHERE status != '' GROUP BY status`, st.CasesByStatus); err != nil {
		return nil, err
	}
	return st, nil
}

func groupCount(ctx context.Context, db *sql.DB, query string, into map[string]int) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan stats: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}
