package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/madupadilshan/Network-Automation/internal/history"
)

var errHistoryDisabled = errors.New("run history is disabled; set history_db or --history-db")

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded runs",
	}

	var (
		workflow string
		limit    int
		since    time.Duration
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			f := history.Filter{Workflow: workflow, Limit: limit}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}
			runs, err := a.store.Runs(cmd.Context(), f)
			if err != nil {
				return err
			}
			a.console.runs(runs)
			return nil
		},
	}
	list.Flags().StringVar(&workflow, "workflow", "", "only runs of this workflow")
	list.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	list.Flags().DurationVar(&since, "since", 0, "only runs started within this duration")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the device outcomes of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openHistory(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			run, err := a.store.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			outcomes, err := a.store.Outcomes(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			a.console.outcomes(run, outcomes)
			return nil
		},
	}

	var deviceLimit int
	device := &cobra.Command{
		Use:   "device <name>",
		Short: "Show recent outcomes for one device across runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openHistory(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			outcomes, err := a.store.DeviceHistory(cmd.Context(), args[0], deviceLimit)
			if err != nil {
				return err
			}
			for _, o := range outcomes {
				line := fmt.Sprintf("%s  %-10s  %-8s  %s", o.Finished.Local().Format("2006-01-02 15:04:05"), o.Workflow, o.Status, o.RunID)
				if o.Error != "" {
					line += "  " + a.console.st.Error.Render(o.Error)
				}
				a.console.println(line)
			}
			return nil
		},
	}
	device.Flags().IntVar(&deviceLimit, "limit", 20, "maximum outcomes to show")

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete runs older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			a, err := openHistory(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			n, err := a.store.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			a.console.println(fmt.Sprintf("Purged %d run(s) older than %s", n, olderThan))
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "retention window")

	var exportWorkflow string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write runs with their outcomes as JSON lines to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openHistory(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()
			return a.store.StreamJSONL(cmd.Context(), cmd.OutOrStdout(), history.Filter{Workflow: exportWorkflow})
		},
	}
	export.Flags().StringVar(&exportWorkflow, "workflow", "", "only runs of this workflow")

	cmd.AddCommand(list, show, device, purge, export)
	return cmd
}

func openHistory(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	a, err := newApp(cmd, flags, "history")
	if err != nil {
		return nil, err
	}
	if a.store == nil {
		a.close()
		return nil, errHistoryDisabled
	}
	return a, nil
}
