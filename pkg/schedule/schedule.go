// Package schedule stores cron driven device checks and runs them.
package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mscrnt/drivecheck/pkg/db"
)

// parser accepts standard five field expressions and descriptors such as
// @hourly.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron validates expr.
func ParseCron(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// Store handles schedule persistence
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a new schedule store
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

const columns = `id, name, description, cron_expr, check_name, device, params, enabled,
	last_run_id, last_run_time, next_run_time, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (*Schedule, error) {
	schedule := &Schedule{}
	err := s.Scan(
		&schedule.ID, &schedule.Name, &schedule.Description,
		&schedule.CronExpr, &schedule.Check, &schedule.Device, &schedule.Params,
		&schedule.Enabled, &schedule.LastRunID, &schedule.LastRunTime,
		&schedule.NextRunTime, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	return schedule, err
}

// Create validates and inserts schedule, filling ID and NextRunTime.
func (s *Store) Create(schedule *Schedule) error {
	if schedule.Name == "" {
		return fmt.Errorf("schedule name cannot be empty")
	}
	if schedule.Check == "" {
		return fmt.Errorf("schedule check cannot be empty")
	}
	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}

	now := s.now()
	nextRun := cronSchedule.Next(now)
	schedule.NextRunTime = &nextRun
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	result, err := s.db.Conn().Exec(
		`INSERT INTO schedules (name, description, cron_expr, check_name, device, params, enabled,
		 next_run_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.Name, schedule.Description, schedule.CronExpr, schedule.Check,
		schedule.Device, schedule.Params, schedule.Enabled, schedule.NextRunTime,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	schedule.ID = id
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id int64) (*Schedule, error) {
	schedule, err := scan(s.db.Conn().QueryRow(`SELECT `+columns+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// GetByName retrieves a schedule by name
func (s *Store) GetByName(name string) (*Schedule, error) {
	schedule, err := scan(s.db.Conn().QueryRow(`SELECT `+columns+` FROM schedules WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %q: %w", name, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// List retrieves schedules based on filters, ordered by name.
func (s *Store) List(filter Filter) ([]*Schedule, error) {
	query := `SELECT ` + columns + ` FROM schedules WHERE 1=1`
	args := []interface{}{}

	if filter.Check != "" {
		query += " AND check_name = ?"
		args = append(args, filter.Check)
	}

	if filter.Device != "" {
		query += " AND device = ?"
		args = append(args, filter.Device)
	}

	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}

	query += " ORDER BY name"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return s.query(query, args...)
}

// GetDue returns enabled schedules whose next run time has passed.
func (s *Store) GetDue() ([]*Schedule, error) {
	return s.query(
		`SELECT `+columns+` FROM schedules
		 WHERE enabled = 1 AND (next_run_time IS NULL OR next_run_time <= ?)
		 ORDER BY next_run_time`,
		s.now(),
	)
}

func (s *Store) query(query string, args ...interface{}) ([]*Schedule, error) {
	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// Update stores every editable field of schedule and recomputes its next
// run time.
func (s *Store) Update(schedule *Schedule) error {
	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}

	now := s.now()
	nextRun := cronSchedule.Next(now)
	schedule.NextRunTime = &nextRun
	schedule.UpdatedAt = now

	return s.exec("update",
		schedule.ID,
		`UPDATE schedules SET name = ?, description = ?, cron_expr = ?, check_name = ?,
		 device = ?, params = ?, enabled = ?, next_run_time = ?, updated_at = ?
		 WHERE id = ?`,
		schedule.Name, schedule.Description, schedule.CronExpr, schedule.Check,
		schedule.Device, schedule.Params, schedule.Enabled, schedule.NextRunTime,
		schedule.UpdatedAt, schedule.ID,
	)
}

// UpdateLastRun records runID as the latest run and advances the next run
// time.
func (s *Store) UpdateLastRun(scheduleID, runID int64) error {
	schedule, err := s.Get(scheduleID)
	if err != nil {
		return err
	}

	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}

	now := s.now()
	return s.exec("update last run",
		scheduleID,
		`UPDATE schedules SET last_run_id = ?, last_run_time = ?, next_run_time = ? WHERE id = ?`,
		runID, now, cronSchedule.Next(now), scheduleID,
	)
}

// Enable enables a schedule
func (s *Store) Enable(id int64) error {
	schedule, err := s.Get(id)
	if err != nil {
		return err
	}

	cronSchedule, err := ParseCron(schedule.CronExpr)
	if err != nil {
		return err
	}

	return s.exec("enable", id,
		`UPDATE schedules SET enabled = 1, next_run_time = ? WHERE id = ?`,
		cronSchedule.Next(s.now()), id,
	)
}

// Disable disables a schedule
func (s *Store) Disable(id int64) error {
	return s.exec("disable", id, `UPDATE schedules SET enabled = 0 WHERE id = ?`, id)
}

// Delete deletes a schedule
func (s *Store) Delete(id int64) error {
	return s.exec("delete", id, `DELETE FROM schedules WHERE id = ?`, id)
}

func (s *Store) exec(op string, id int64, query string, args ...interface{}) error {
	res, err := s.db.Conn().Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s schedule: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("schedule %d: %w", id, db.ErrNotFound)
	}
	return nil
}
