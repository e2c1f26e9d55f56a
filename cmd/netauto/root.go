package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madupadilshan/Network-Automation/internal/config"
)

type globalFlags struct {
	configFile    string
	configDir     string
	backupDir     string
	logDir        string
	logLevel      string
	historyDB     string
	concurrency   int
	retryAttempts int
	dryRun        bool
	devices       []string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "netauto",
		Short: "Configure and back up network devices from declarative YAML",
		Long: `netauto pushes interface, VLAN subinterface and routing intent to a
fleet of routers over SSH or telnet, and keeps timestamped backups of their
running configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "netauto settings file (YAML or JSON)")
	pf.StringVar(&flags.configDir, "config-dir", "", "directory holding inventory.yml and intent files")
	pf.StringVar(&flags.backupDir, "backup-dir", "", "directory for configuration snapshots")
	pf.StringVar(&flags.logDir, "log-dir", "", "directory for per-workflow log files, empty to disable")
	pf.StringVar(&flags.logLevel, "log-level", "", "console log level (debug, info, warn, error)")
	pf.StringVar(&flags.historyDB, "history-db", "", "SQLite run history database")
	pf.IntVarP(&flags.concurrency, "concurrency", "c", 0, fmt.Sprintf("devices processed at once (1-%d)", config.MaxConcurrency))
	pf.IntVar(&flags.retryAttempts, "retry-attempts", 0, "connection attempts per device")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "render commands without contacting devices")
	pf.StringSliceVarP(&flags.devices, "device", "d", nil, "limit the run to these devices (repeatable)")

	root.AddCommand(
		newWorkflowCmd(flags, "interfaces", "Configure physical interfaces from interfaces.yml"),
		newWorkflowCmd(flags, "vlans", "Configure VLAN subinterfaces from vlans.yml"),
		newWorkflowCmd(flags, "routing", "Configure OSPF and EIGRP from routing.yml"),
		newWorkflowCmd(flags, "backup", "Back up running configurations"),
		newWorkflowCmd(flags, "check", "Check connectivity and management access"),
		newHistoryCmd(flags),
		newScheduleCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the settings file and environment, then applies the
// flags the user set explicitly.
func (f *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed
	if changed("config-dir") {
		cfg.ConfigDir = f.configDir
	}
	if changed("backup-dir") {
		cfg.BackupDir = f.backupDir
	}
	if changed("log-dir") {
		cfg.LogDir = f.logDir
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("history-db") {
		cfg.HistoryDB = f.historyDB
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("retry-attempts") {
		cfg.Retry.MaxAttempts = f.retryAttempts
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netauto %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
