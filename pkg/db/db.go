package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a run or schedule does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the SQL database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		check_name TEXT NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		params TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		success BOOLEAN DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		findings TEXT,
		details TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		cron_expr TEXT NOT NULL,
		check_name TEXT NOT NULL,
		device TEXT NOT NULL DEFAULT '',
		params TEXT,
		enabled BOOLEAN DEFAULT 1,
		last_run_id INTEGER,
		last_run_time DATETIME,
		next_run_time DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (last_run_id) REFERENCES runs(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_check ON runs(check_name);
	CREATE INDEX IF NOT EXISTS idx_runs_device ON runs(device);
	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time);
	CREATE INDEX IF NOT EXISTS idx_runs_success ON runs(success);
	CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_metric ON results(metric);
	CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled);

	CREATE TRIGGER IF NOT EXISTS update_runs_timestamp
	AFTER UPDATE ON runs
	BEGIN
		UPDATE runs SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;

	CREATE TRIGGER IF NOT EXISTS update_schedules_timestamp
	AFTER UPDATE ON schedules
	BEGIN
		UPDATE schedules SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;
	`

	_, err := db.conn.Exec(schema)
	return err
}

const runColumns = `id, check_name, device, params, start_time, end_time,
	success, error, findings, details, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	err := s.Scan(
		&run.ID, &run.Check, &run.Device, &run.Params, &run.StartTime, &run.EndTime,
		&run.Success, &run.Error, &run.Findings, &run.Details, &run.CreatedAt, &run.UpdatedAt,
	)
	return run, err
}

// CreateRun creates a new run record for check against device.
func (db *DB) CreateRun(check, device string, params JSONData) (*Run, error) {
	now := time.Now()
	run := &Run{
		Check:     check,
		Device:    device,
		Params:    params,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := db.conn.Exec(
		`INSERT INTO runs (check_name, device, params, start_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.Check, run.Device, run.Params, run.StartTime, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return run, nil
}

// UpdateRun stores the outcome fields of run.
func (db *DB) UpdateRun(run *Run) error {
	res, err := db.conn.Exec(
		`UPDATE runs SET
		 end_time = ?, success = ?, error = ?, findings = ?, details = ?, updated_at = ?
		 WHERE id = ?`,
		run.EndTime, run.Success, run.Error, run.Findings, run.Details, time.Now(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Finish stores the outcome of run together with its metrics.
func (db *DB) Finish(run *Run, results []Result) error {
	if err := db.UpdateRun(run); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}
	return db.CreateResults(run.ID, results)
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id int64) (*Run, error) {
	row := db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs based on filters, newest first.
func (db *DB) ListRuns(filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []interface{}{}

	if filter.Check != "" {
		query += " AND check_name = ?"
		args = append(args, filter.Check)
	}

	if filter.Device != "" {
		query += " AND device = ?"
		args = append(args, filter.Device)
	}

	if filter.StartTime != nil {
		query += " AND start_time >= ?"
		args = append(args, filter.StartTime)
	}

	if filter.EndTime != nil {
		query += " AND start_time <= ?"
		args = append(args, filter.EndTime)
	}

	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, filter.Success)
	}

	query += " ORDER BY start_time DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DeleteRun removes a run and, by cascade, its results.
func (db *DB) DeleteRun(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateResult creates a new result record
func (db *DB) CreateResult(runID int64, metric string, value float64, unit string) error {
	_, err := db.conn.Exec(
		`INSERT INTO results (run_id, metric, value, unit) VALUES (?, ?, ?, ?)`,
		runID, metric, value, unit,
	)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// CreateResults inserts results for runID in a single transaction.
func (db *DB) CreateResults(runID int64, results []Result) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after Commit
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, metric, value, unit) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		if _, err := stmt.Exec(runID, r.Metric, r.Value, r.Unit); err != nil {
			return fmt.Errorf("failed to insert result %s: %w", r.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetResults retrieves results for a run in insertion order.
func (db *DB) GetResults(runID int64) ([]*Result, error) {
	return db.ListResults(ResultFilter{RunID: &runID})
}

// ListResults retrieves results based on filters
func (db *DB) ListResults(filter ResultFilter) ([]*Result, error) {
	query := `SELECT id, run_id, metric, value, unit, created_at
	          FROM results WHERE 1=1`
	args := []interface{}{}

	if filter.RunID != nil {
		query += " AND run_id = ?"
		args = append(args, *filter.RunID)
	}

	if filter.Metric != "" {
		query += " AND metric = ?"
		args = append(args, filter.Metric)
	}

	query += " ORDER BY id"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Result
	for rows.Next() {
		result := &Result{}
		err := rows.Scan(
			&result.ID, &result.RunID, &result.Metric,
			&result.Value, &result.Unit, &result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
