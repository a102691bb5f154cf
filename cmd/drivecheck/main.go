package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/internal/version"
	_ "github.com/mscrnt/drivecheck/pkg/plugin/inventory" // Register inventory check
	_ "github.com/mscrnt/drivecheck/pkg/plugin/smart"     // Register SMART check
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "drivecheck",
		Short: "Storage device health inspection",
		Long: `drivecheck reads identity, temperature and SMART health data from SCSI/SATA
and NVMe devices through the operating system's pass-through interface, records
health checks in a local history and serves them to remote clients.`,
		Version:       version.GetVersion(buildVersion, buildCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig(configPath, dbPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.drivecheck/config.yaml)")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(versionCmd())
	cmd.AddCommand(listCmd())
	cmd.AddCommand(detailsCmd())
	cmd.AddCommand(debugCmd())
	cmd.AddCommand(checkCmd())
	cmd.AddCommand(historyCmd())
	cmd.AddCommand(showCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(scheduleCmd())
	cmd.AddCommand(reportCmd())
	cmd.AddCommand(agentCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
