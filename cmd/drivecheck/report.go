package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/report"
)

// pageSizes maps paper names to width and height in inches.
var pageSizes = map[string][2]float64{
	"A3":     {11.69, 16.54},
	"A4":     {8.27, 11.69},
	"LETTER": {8.5, 11.0},
	"LEGAL":  {8.5, 14.0},
}

func reportCmd() *cobra.Command {
	var (
		format    string
		output    string
		latest    bool
		checkName string
		landscape bool
		pageSize  string
	)

	cmd := &cobra.Command{
		Use:   "report [RUN_ID]",
		Short: "Generate an HTML or PDF report of a run",
		Long: `Generate an HTML or PDF report from a recorded run. PDF output needs a
Chrome or Chromium binary.

Examples:
  # HTML report of the latest run
  drivecheck report --latest

  # PDF report of run 42
  drivecheck report 42 --format pdf --output sda.pdf

  # Latest SMART check, landscape A4
  drivecheck report --latest --check smart --format pdf --landscape --page-size A4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(format)
			if format != "html" && format != "pdf" {
				return fmt.Errorf("format must be either 'html' or 'pdf'")
			}
			if latest == (len(args) == 1) {
				return fmt.Errorf("either a run ID or --latest must be specified")
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			var runID int64
			if latest {
				runs, err := database.ListRuns(db.RunFilter{Check: checkName, Limit: 1})
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if len(runs) == 0 {
					return fmt.Errorf("no runs found")
				}
				runID = runs[0].ID
			} else if runID, err = parseRunID(args[0]); err != nil {
				return err
			}

			run, err := database.GetRun(runID)
			if err != nil {
				return fmt.Errorf("run %d not found", runID)
			}

			if output == "" {
				output = fmt.Sprintf("drivecheck_report_%d_%s.%s", runID, time.Now().Format("20060102_150405"), format)
			}

			generator := report.NewGenerator(database)
			switch format {
			case "html":
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- output path comes from the command line
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				if err := generator.WriteHTML(f, runID); err != nil {
					_ = f.Close()
					return fmt.Errorf("failed to generate HTML report: %w", err)
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("failed to write HTML file: %w", err)
				}

			case "pdf":
				size, ok := pageSizes[strings.ToUpper(pageSize)]
				if !ok {
					return fmt.Errorf("unsupported page size: %s", pageSize)
				}
				options := report.DefaultPDFOptions()
				options.Landscape = landscape
				options.PaperWidth, options.PaperHeight = size[0], size[1]

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := generator.GeneratePDF(ctx, runID, output, &options); err != nil {
					return fmt.Errorf("failed to generate PDF report: %w", err)
				}
			}

			absPath, _ := filepath.Abs(output)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %s report for run #%d\n", strings.ToUpper(format), runID)
			fmt.Fprintf(out, "Check: %s\n", run.Check)
			fmt.Fprintf(out, "Status: %s\n", formatStatus(run))
			fmt.Fprintf(out, "Output: %s\n", absPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html or pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().BoolVar(&latest, "latest", false, "Use the latest run")
	cmd.Flags().StringVarP(&checkName, "check", "c", "", "Filter by check when using --latest")
	cmd.Flags().BoolVar(&landscape, "landscape", false, "Generate PDF in landscape mode")
	cmd.Flags().StringVar(&pageSize, "page-size", "LETTER", "PDF page size (A3, A4, LETTER, LEGAL)")

	return cmd
}
