package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Run is one execution of a check against a device.
type Run struct {
	ID        int64      `json:"id"`
	Check     string     `json:"check"`
	Device    string     `json:"device,omitempty"`
	Params    JSONData   `json:"params"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Findings  StringList `json:"findings,omitempty"`
	Details   JSONData   `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Result represents a metric result from a run
type Result struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// JSONData is a custom type for storing JSON in SQLite
type JSONData map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	data, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into JSONData: %w", err)
	}
	return json.Unmarshal(data, j)
}

// StringList stores findings as a JSON array.
type StringList []string

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return json.Marshal([]string(s))
}

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	data, err := scanBytes(value)
	if err != nil {
		return fmt.Errorf("cannot scan into StringList: %w", err)
	}
	return json.Unmarshal(data, (*[]string)(s))
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}

// RunStatus represents the status of a run
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// GetStatus returns the status of a run
func (r *Run) GetStatus() RunStatus {
	if r.EndTime == nil {
		if r.StartTime.IsZero() {
			return RunStatusPending
		}
		return RunStatusRunning
	}

	if r.Success {
		return RunStatusComplete
	}
	return RunStatusFailed
}

// Duration returns the duration of the run
func (r *Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// RunFilter represents filters for querying runs
type RunFilter struct {
	Check     string
	Device    string
	StartTime *time.Time
	EndTime   *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// ResultFilter represents filters for querying results
type ResultFilter struct {
	RunID  *int64
	Metric string
	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting data
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// ParseExportFormat validates a user supplied format name.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case ExportFormatCSV, ExportFormatJSON:
		return ExportFormat(s), nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}
