// Package plugin defines device health checks and the registry that holds
// them.
package plugin

import (
	"context"
	"encoding/json"
	"time"
)

// Params represents parameters passed to a check
type Params struct {
	// Device is the block device path, empty for checks that cover every
	// device.
	Device  string                 `json:"device,omitempty"`
	Timeout time.Duration          `json:"timeout"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// Metric is one recorded measurement.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Result represents the output of a check
type Result struct {
	// Timing information
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Check outcome
	Success  bool                   `json:"success"`
	Error    string                 `json:"error,omitempty"`
	Metrics  []Metric               `json:"metrics"`
	Findings []string               `json:"findings,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Record appends a metric.
func (r *Result) Record(name string, value float64, unit string) {
	r.Metrics = append(r.Metrics, Metric{Name: name, Value: value, Unit: unit})
}

// Fail marks the result failed with a finding.
func (r *Result) Fail(finding string) {
	r.Success = false
	r.Findings = append(r.Findings, finding)
}

// Metric returns the first metric with name.
func (r Result) Metric(name string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

// Check is the interface that all health checks must implement
type Check interface {
	// Name returns the unique name of the check
	Name() string

	// Description returns a human-readable description
	Description() string

	// Run executes the check with the given parameters
	Run(ctx context.Context, params Params) (Result, error)

	// ValidateParams checks if the parameters are valid for this check
	ValidateParams(params Params) error

	// DefaultParams returns the default parameters for this check
	DefaultParams() Params
}

// MetricType represents the type of a metric
type MetricType string

const (
	MetricTypeGauge   MetricType = "gauge"   // Point-in-time value
	MetricTypeCounter MetricType = "counter" // Cumulative value
)

// MetricInfo provides metadata about a metric
type MetricInfo struct {
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Unit        string     `json:"unit"`
	Description string     `json:"description"`
}

// Info provides metadata about a check
type Info struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Metrics     []MetricInfo `json:"metrics"`
	Parameters  []ParamInfo  `json:"parameters"`
}

// ParamInfo describes a parameter that a check accepts
type ParamInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
}

// MarshalParams converts Params to JSON
func MarshalParams(p Params) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalParams converts JSON to Params
func UnmarshalParams(data []byte) (Params, error) {
	var p Params
	err := json.Unmarshal(data, &p)
	return p, err
}
