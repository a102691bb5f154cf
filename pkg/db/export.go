package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const timeLayout = "2006-01-02 15:04:05"

var csvHeaders = []string{
	"Run ID", "Check", "Device", "Start Time", "End Time", "Duration (s)",
	"Success", "Findings", "Metric", "Value", "Unit",
}

// Export writes one run in the given format.
func (db *DB) Export(w io.Writer, runID int64, format ExportFormat) error {
	switch format {
	case ExportFormatCSV:
		return db.ExportCSV(w, runID)
	case ExportFormatJSON:
		return db.ExportJSON(w, runID)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportCSV exports results to CSV format
func (db *DB) ExportCSV(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	results, err := db.GetResults(runID)
	if err != nil {
		return fmt.Errorf("failed to get results: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := writeRunRows(csvWriter, run, results); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON exports results to JSON format
func (db *DB) ExportJSON(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	results, err := db.GetResults(runID)
	if err != nil {
		return fmt.Errorf("failed to get results: %w", err)
	}

	export := struct {
		Run     *Run      `json:"run"`
		Results []*Result `json:"results"`
	}{
		Run:     run,
		Results: results,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// ExportAllCSV exports every run matching filter with its results.
func (db *DB) ExportAllCSV(w io.Writer, filter RunFilter) error {
	runs, err := db.ListRuns(filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for _, run := range runs {
		results, err := db.GetResults(run.ID)
		if err != nil {
			return fmt.Errorf("failed to get results for run %d: %w", run.ID, err)
		}
		if err := writeRunRows(csvWriter, run, results); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportAllJSON exports every run matching filter with its results as a
// JSON array.
func (db *DB) ExportAllJSON(w io.Writer, filter RunFilter) error {
	runs, err := db.ListRuns(filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	type entry struct {
		Run     *Run      `json:"run"`
		Results []*Result `json:"results"`
	}
	export := make([]entry, 0, len(runs))
	for _, run := range runs {
		results, err := db.GetResults(run.ID)
		if err != nil {
			return fmt.Errorf("failed to get results for run %d: %w", run.ID, err)
		}
		export = append(export, entry{Run: run, Results: results})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// writeRunRows writes one row per result. A run without results still gets
// a row so failed checks show up in the export.
func writeRunRows(w *csv.Writer, run *Run, results []*Result) error {
	endTime := ""
	if run.EndTime != nil {
		endTime = run.EndTime.Format(timeLayout)
	}

	base := []string{
		strconv.FormatInt(run.ID, 10),
		run.Check,
		run.Device,
		run.StartTime.Format(timeLayout),
		endTime,
		fmt.Sprintf("%.3f", run.Duration().Seconds()),
		strconv.FormatBool(run.Success),
		strings.Join(run.Findings, "; "),
	}

	if len(results) == 0 {
		row := append(append([]string{}, base...), "", "", "")
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	}

	for _, result := range results {
		row := append(append([]string{}, base...),
			result.Metric,
			strconv.FormatFloat(result.Value, 'f', -1, 64),
			result.Unit,
		)
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	return nil
}
