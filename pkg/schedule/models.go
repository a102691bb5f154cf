package schedule

import (
	"time"

	"github.com/mscrnt/drivecheck/pkg/db"
)

// Schedule is a check run periodically against one device.
type Schedule struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CronExpr    string      `json:"cron_expr"`
	Check       string      `json:"check"`
	Device      string      `json:"device,omitempty"`
	Params      db.JSONData `json:"params"`
	Enabled     bool        `json:"enabled"`
	LastRunID   *int64      `json:"last_run_id"`
	LastRunTime *time.Time  `json:"last_run_time"`
	NextRunTime *time.Time  `json:"next_run_time"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Filter represents filters for querying schedules
type Filter struct {
	Check   string
	Device  string
	Enabled *bool
	Limit   int
	Offset  int
}

// IsOverdue returns true if the schedule is overdue for execution
func (s *Schedule) IsOverdue(now time.Time) bool {
	if !s.Enabled || s.NextRunTime == nil {
		return false
	}
	return now.After(*s.NextRunTime)
}

// ShouldRun reports whether an enabled schedule has never run or is past
// its next run time.
func (s *Schedule) ShouldRun(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastRunTime == nil {
		return true
	}
	return s.IsOverdue(now)
}
