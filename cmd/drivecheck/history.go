package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/db"
)

// runFilter holds the history filter flags shared by history and export.
type runFilter struct {
	check   string
	device  string
	since   string
	limit   int
	success bool
	failed  bool
}

func (f *runFilter) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.check, "check", "c", "", "Filter by check name")
	cmd.Flags().StringVarP(&f.device, "device", "d", "", "Filter by device")
	cmd.Flags().StringVar(&f.since, "since", "", "Only runs newer than this (e.g. 24h, 7d)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 50, "Maximum number of runs")
	cmd.Flags().BoolVar(&f.success, "success", false, "Only successful runs")
	cmd.Flags().BoolVar(&f.failed, "failed", false, "Only failed runs")
}

func (f *runFilter) build(now time.Time) (db.RunFilter, error) {
	filter := db.RunFilter{Check: f.check, Device: f.device, Limit: f.limit}

	if f.since != "" {
		d, err := parseDuration(f.since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since %q: %w", f.since, err)
		}
		start := now.Add(-d)
		filter.StartTime = &start
	}

	if f.success != f.failed {
		success := f.success
		filter.Success = &success
	}
	return filter, nil
}

func historyCmd() *cobra.Command {
	var filter runFilter

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded check runs",
		Long: `List check runs from the history database, newest first.

Examples:
  # Last 50 runs
  drivecheck history

  # Failed SMART checks of one disk in the last week
  drivecheck history --check smart --device /dev/sda --failed --since 7d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := filter.build(time.Now())
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			runs, err := database.ListRuns(f)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found")
				return nil
			}
			fmt.Fprintln(out, runTable(runs))
			return nil
		},
	}

	filter.register(cmd)
	return cmd
}

func runTable(runs []*db.Run) string {
	t := newTable("ID", "Check", "Device", "Started", "Duration", "Status")
	for _, run := range runs {
		duration := "-"
		if run.EndTime != nil {
			duration = formatDuration(run.Duration())
		}
		t.Row(
			strconv.FormatInt(run.ID, 10),
			run.Check,
			truncate(run.Device, 24),
			humanize.Time(run.StartTime),
			duration,
			formatStatus(run),
		)
	}
	return t.String()
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show one recorded run",
		Long: `Show the outcome, findings and metrics of a recorded run.

Examples:
  drivecheck show 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseRunID(args[0])
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			run, err := database.GetRun(runID)
			if err != nil {
				return fmt.Errorf("run %d not found", runID)
			}
			results, err := database.GetResults(runID)
			if err != nil {
				return fmt.Errorf("failed to get results: %w", err)
			}

			printRun(cmd.OutOrStdout(), run, results)
			return nil
		},
	}
}

func printRun(w io.Writer, run *db.Run, results []*db.Result) {
	t := newTable("Key", "Value")
	t.Row("Run ID", strconv.FormatInt(run.ID, 10))
	t.Row("Check", run.Check)
	if run.Device != "" {
		t.Row("Device", run.Device)
	}
	t.Row("Started", run.StartTime.Format(timeLayout))
	if run.EndTime != nil {
		t.Row("Finished", run.EndTime.Format(timeLayout))
		t.Row("Duration", formatDuration(run.Duration()))
	}
	t.Row("Status", formatStatus(run))
	if run.Error != "" {
		t.Row("Error", critStyle.Render(run.Error))
	}
	for _, k := range sortedKeys(run.Params) {
		t.Row("Param "+k, fmt.Sprint(run.Params[k]))
	}
	fmt.Fprintln(w, t.String())

	if len(run.Findings) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Findings"))
		for _, f := range run.Findings {
			fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), f)
		}
	}

	if len(results) > 0 {
		rt := newTable("Metric", "Value", "Unit")
		for _, r := range results {
			rt.Row(r.Metric, humanize.CommafWithDigits(r.Value, 2), r.Unit)
		}
		fmt.Fprintln(w, rt.String())
	}
}

func exportCmd() *cobra.Command {
	var (
		runID  int64
		all    bool
		format string
		output string
		filter runFilter
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded runs as CSV or JSON",
		Long: `Export one run, or every run matching the filters, as CSV or JSON.

Examples:
  # One run to stdout
  drivecheck export --run 42

  # Everything from the last 30 days to a file
  drivecheck export --all --since 30d --format json --out history.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && runID == 0 {
				return fmt.Errorf("either --run or --all must be specified")
			}
			exportFormat, err := db.ParseExportFormat(strings.ToLower(format))
			if err != nil {
				return err
			}
			f, err := filter.build(time.Now())
			if err != nil {
				return err
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if !all {
				if _, err := database.GetRun(runID); err != nil {
					return fmt.Errorf("run %d not found", runID)
				}
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output) // #nosec G304 -- output path comes from the command line
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer func() { _ = file.Close() }()
				out = file
			}

			switch {
			case !all:
				err = database.Export(out, runID, exportFormat)
			case exportFormat == db.ExportFormatCSV:
				err = database.ExportAllCSV(out, f)
			default:
				err = database.ExportAllJSON(out, f)
			}
			if err != nil {
				return fmt.Errorf("failed to export: %w", err)
			}

			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to export")
	cmd.Flags().BoolVar(&all, "all", false, "Export every run matching the filters")
	cmd.Flags().StringVarP(&format, "format", "f", string(db.ExportFormatCSV), "Output format: csv or json")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")
	filter.register(cmd)

	return cmd
}
