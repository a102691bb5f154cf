package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/plugin"
	"github.com/mscrnt/drivecheck/pkg/schedule"
)

func checkCmd() *cobra.Command {
	var (
		devicePath string
		params     map[string]string
		timeout    time.Duration
		noSave     bool
		list       bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "check [name]",
		Short: "Run a health check",
		Long: `Run a registered health check and record the outcome in the history.

Examples:
  # List available checks
  drivecheck check --list

  # Check SMART health of one disk
  drivecheck check smart --device /dev/sda

  # Fail above 50°C
  drivecheck check smart --device /dev/nvme0n1 --param max_temperature=50

  # Inventory every disk without recording it
  drivecheck check inventory --no-save`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				return listChecks(out)
			}
			if len(args) == 0 {
				return fmt.Errorf("check name required")
			}
			name := args[0]

			c, err := plugin.Get(name)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Available checks:")
				_ = listChecks(cmd.ErrOrStderr())
				return err
			}

			p := plugin.Params{
				Device:  devicePath,
				Timeout: timeout,
				Config:  map[string]interface{}(parseParams(params)),
			}
			if len(params) == 0 {
				p.Config = nil
			}

			if dryRun {
				fmt.Fprintf(out, "Would run check: %s\n", c.Name())
				fmt.Fprintf(out, "Description: %s\n", c.Description())
				if p.Device != "" {
					fmt.Fprintf(out, "Device: %s\n", p.Device)
				}
				for _, k := range sortedKeys(p.Config) {
					fmt.Fprintf(out, "  %s: %v\n", k, p.Config[k])
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if noSave {
				result, err := plugin.Execute(ctx, name, p)
				printResult(out, result)
				return checkError(result, err)
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			run, err := database.CreateRun(name, p.Device, db.JSONData(p.Config))
			if err != nil {
				return fmt.Errorf("failed to create run record: %w", err)
			}
			fmt.Fprintf(out, "Running check: %s (run ID: %d)\n", c.Name(), run.ID)

			result, execErr := plugin.Execute(ctx, name, p)

			end := result.EndTime
			run.EndTime = &end
			run.Success = result.Success && execErr == nil
			run.Error = result.Error
			run.Findings = result.Findings
			run.Details = db.JSONData(result.Details)
			if err := database.Finish(run, schedule.Results(result)); err != nil {
				logger.WithError(err).WithField("run_id", run.ID).Warn("Failed to record run")
			}

			printResult(out, result)
			return checkError(result, execErr)
		},
	}

	cmd.Flags().StringVarP(&devicePath, "device", "d", "", "Device to check")
	cmd.Flags().StringToStringVarP(&params, "param", "p", map[string]string{}, "Check parameters (key=value)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Check timeout (0 uses the check default)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not record the run")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List available checks")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be executed without running")

	return cmd
}

func checkError(result plugin.Result, err error) error {
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("check failed")
	}
	return nil
}

func listChecks(w io.Writer) error {
	infos := plugin.GetInfo()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No checks registered")
		return nil
	}

	t := newTable("Name", "Description", "Parameters")
	for _, info := range infos {
		var names []string
		for _, p := range info.Parameters {
			names = append(names, p.Name)
		}
		t.Row(info.Name, info.Description, fmt.Sprint(names))
	}
	fmt.Fprintln(w, t.String())
	return nil
}

func printResult(w io.Writer, result plugin.Result) {
	status := okStyle.Render("PASSED")
	if !result.Success {
		status = critStyle.Render("FAILED")
	}
	fmt.Fprintf(w, "\nCompleted in %s: %s\n", formatDuration(result.Duration), status)

	if result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Error)
	}
	for _, f := range result.Findings {
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("!"), f)
	}

	if len(result.Metrics) > 0 {
		t := newTable("Metric", "Value", "Unit")
		for _, m := range result.Metrics {
			t.Row(m.Name, humanize.CommafWithDigits(m.Value, 2), m.Unit)
		}
		fmt.Fprintln(w, t.String())
	}

	for _, k := range sortedKeys(result.Details) {
		fmt.Fprintf(w, "  %s: %v\n", k, result.Details[k])
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
