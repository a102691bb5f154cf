package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/db"
	"github.com/mscrnt/drivecheck/pkg/plugin"
	"github.com/mscrnt/drivecheck/pkg/schedule"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled checks",
		Long:  "Create, manage and run periodic health checks",
	}

	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	cmd.AddCommand(scheduleToggleCmd("enable", true))
	cmd.AddCommand(scheduleToggleCmd("disable", false))
	cmd.AddCommand(scheduleShowCmd())
	cmd.AddCommand(scheduleRunCmd())
	cmd.AddCommand(scheduleStartCmd())

	return cmd
}

// withStore opens the database for the duration of fn.
func withStore(fn func(*schedule.Store) error) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()
	return fn(schedule.NewStore(database))
}

func scheduleAddCmd() *cobra.Command {
	var (
		name        string
		description string
		cronExpr    string
		checkName   string
		devicePath  string
		params      map[string]string
		enabled     bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new schedule",
		Long: `Add a periodic health check with cron-style timing.

Cron expression format:
  ┌───────────── minute (0 - 59)
  │ ┌───────────── hour (0 - 23)
  │ │ ┌───────────── day of month (1 - 31)
  │ │ │ ┌───────────── month (1 - 12)
  │ │ │ │ ┌───────────── day of week (0 - 6) (Sunday to Saturday)
  │ │ │ │ │
  * * * * *

Descriptors such as @hourly and @daily are accepted too.

Examples:
  # SMART check of one disk every hour
  drivecheck schedule add --name "sda hourly" --cron "0 * * * *" --check smart --device /dev/sda

  # Inventory every night at 2 AM
  drivecheck schedule add --name nightly --cron "0 2 * * *" --check inventory`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := plugin.Get(checkName); err != nil {
				return fmt.Errorf("check %s not found", checkName)
			}

			return withStore(func(store *schedule.Store) error {
				sched := &schedule.Schedule{
					Name:        name,
					Description: description,
					CronExpr:    cronExpr,
					Check:       checkName,
					Device:      devicePath,
					Params:      parseParams(params),
					Enabled:     enabled,
				}
				if err := store.Create(sched); err != nil {
					return fmt.Errorf("failed to create schedule: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created schedule '%s' (ID: %d)\n", sched.Name, sched.ID)
				if sched.NextRunTime != nil {
					fmt.Fprintf(out, "Next run: %s\n", sched.NextRunTime.Format(timeLayout))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Schedule name (required)")
	cmd.Flags().StringVar(&description, "desc", "", "Schedule description")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (required)")
	cmd.Flags().StringVarP(&checkName, "check", "c", "", "Check to run (required)")
	cmd.Flags().StringVarP(&devicePath, "device", "d", "", "Device to check")
	cmd.Flags().StringToStringVarP(&params, "param", "p", map[string]string{}, "Check parameters (key=value)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable schedule immediately")

	for _, flag := range []string{"name", "cron", "check"} {
		if err := cmd.MarkFlagRequired(flag); err != nil {
			logger.WithError(err).WithField("flag", flag).Warn("Failed to mark flag required")
		}
	}

	return cmd
}

func scheduleListCmd() *cobra.Command {
	var (
		all       bool
		disabled  bool
		checkName string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Long: `List configured schedules.

Examples:
  # Enabled schedules
  drivecheck schedule list

  # Everything
  drivecheck schedule list --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := schedule.Filter{Check: checkName}
			if !all {
				enabled := !disabled
				filter.Enabled = &enabled
			}

			return withStore(func(store *schedule.Store) error {
				schedules, err := store.List(filter)
				if err != nil {
					return fmt.Errorf("failed to list schedules: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(schedules) == 0 {
					fmt.Fprintln(out, "No schedules found")
					return nil
				}

				now := time.Now()
				t := newTable("ID", "Name", "Check", "Device", "Cron", "Enabled", "Next Run")
				for _, s := range schedules {
					next := "N/A"
					if s.NextRunTime != nil {
						next = s.NextRunTime.Format("2006-01-02 15:04")
						if s.IsOverdue(now) {
							next = warnStyle.Render(next + " (overdue)")
						}
					}
					t.Row(
						strconv.FormatInt(s.ID, 10),
						truncate(s.Name, 20),
						s.Check,
						s.Device,
						s.CronExpr,
						strconv.FormatBool(s.Enabled),
						next,
					)
				}
				fmt.Fprintln(out, t.String())
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all schedules")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Show only disabled schedules")
	cmd.Flags().StringVarP(&checkName, "check", "c", "", "Filter by check name")

	return cmd
}

func scheduleRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove ID|NAME",
		Short: "Remove a schedule",
		Long: `Remove a schedule by ID or name.

Examples:
  drivecheck schedule remove 1
  drivecheck schedule remove "sda hourly" --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !yes {
					fmt.Fprintf(out, "Delete schedule '%s' (ID: %d)? [y/N] ", sched.Name, sched.ID)
					answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if !strings.EqualFold(strings.TrimSpace(answer), "y") {
						fmt.Fprintln(out, "Cancelled")
						return nil
					}
				}

				if err := store.Delete(sched.ID); err != nil {
					return fmt.Errorf("failed to delete schedule: %w", err)
				}
				fmt.Fprintf(out, "Deleted schedule '%s'\n", sched.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func scheduleToggleCmd(verb string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ID|NAME",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				toggle := store.Disable
				if enable {
					toggle = store.Enable
				}
				if err := toggle(sched.ID); err != nil {
					return fmt.Errorf("failed to %s schedule: %w", verb, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd schedule '%s'\n", strings.ToUpper(verb[:1])+verb[1:], sched.Name)
				return nil
			})
		},
	}
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID|NAME",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				t := newTable("Key", "Value")
				t.Row("Schedule", fmt.Sprintf("%s (ID: %d)", sched.Name, sched.ID))
				if sched.Description != "" {
					t.Row("Description", sched.Description)
				}
				t.Row("Check", sched.Check)
				if sched.Device != "" {
					t.Row("Device", sched.Device)
				}
				t.Row("Cron", sched.CronExpr)
				t.Row("Enabled", strconv.FormatBool(sched.Enabled))
				t.Row("Created", sched.CreatedAt.Format(timeLayout))

				lastRun := "Never"
				if sched.LastRunTime != nil {
					lastRun = fmt.Sprintf("%s (%s)", sched.LastRunTime.Format(timeLayout), humanize.Time(*sched.LastRunTime))
					if sched.LastRunID != nil {
						lastRun += fmt.Sprintf(", run %d", *sched.LastRunID)
					}
				}
				t.Row("Last Run", lastRun)

				if sched.NextRunTime != nil {
					next := sched.NextRunTime.Format(timeLayout)
					if sched.IsOverdue(time.Now()) {
						next = warnStyle.Render(next + " (OVERDUE)")
					}
					t.Row("Next Run", next)
				}
				for _, k := range sortedKeys(sched.Params) {
					t.Row("Param "+k, fmt.Sprint(sched.Params[k]))
				}

				fmt.Fprintln(cmd.OutOrStdout(), t.String())
				return nil
			})
		},
	}
}

func scheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run ID|NAME",
		Short: "Run a schedule once now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			runner := schedule.NewRunner(database, logger)
			sched, err := findSchedule(runner.Store(), args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := runner.Execute(ctx, sched)
			if err != nil {
				return err
			}
			results, err := database.GetResults(run.ID)
			if err != nil {
				return fmt.Errorf("failed to get results: %w", err)
			}
			printRun(cmd.OutOrStdout(), run, results)
			if run.GetStatus() != db.RunStatusComplete {
				return fmt.Errorf("check failed")
			}
			return nil
		},
	}
}

func scheduleStartCmd() *cobra.Command {
	var (
		checkInterval time.Duration
		logFile       string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long: `Start the scheduler daemon to run checks automatically.

The scheduler will:
- Load all enabled schedules
- Run checks according to their cron expressions
- Catch up on overdue schedules every check interval
- Save results to the history database

Examples:
  # Start scheduler in foreground
  drivecheck schedule start

  # Catch up every 30 seconds and log to a file
  drivecheck schedule start --check-interval 30s --log scheduler.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- log path comes from the command line
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer func() { _ = f.Close() }()
				logger.SetOutput(f)
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			runner := schedule.NewRunner(database, logger)
			if err := runner.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(checkInterval)
			defer ticker.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Press Ctrl+C to stop.")

			for {
				select {
				case <-ctx.Done():
					logger.Info("Received shutdown signal")
					runner.Stop(30 * time.Second)
					return nil

				case <-ticker.C:
					n, err := runner.CheckDue(ctx)
					if err != nil {
						logger.WithError(err).Error("Failed to check due schedules")
					} else if n > 0 {
						logger.WithField("count", n).Info("Ran overdue schedules")
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&checkInterval, "check-interval", 60*time.Second, "Interval to check for overdue schedules")
	cmd.Flags().StringVar(&logFile, "log", "", "Log file path (default: stderr)")

	return cmd
}
