package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madupadilshan/Network-Automation/internal/scheduler"
)

func newScheduleCmd(flags *globalFlags) *cobra.Command {
	var (
		every  string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <workflow>",
		Short: "Run a workflow repeatedly on an interval or cron schedule",
		Long: `Run a workflow until interrupted. The schedule is a Go duration such as
"6h" or a five-field cron expression such as "0 2 * * *". Inventory and
intent files are re-read before every run.`,
		Example:   `  netauto schedule backup --every "0 2 * * *"`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"interfaces", "vlans", "routing", "backup", "check"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			a, err := newApp(cmd, flags, name)
			if err != nil {
				return err
			}
			defer a.close()
			schedule := every
			if schedule == "" {
				schedule = a.cfg.Schedule
			}
			if schedule == "" {
				return fmt.Errorf("no schedule given; use --every or set schedule in the config")
			}

			s, err := scheduler.New(scheduler.Config{
				Name:       name,
				Schedule:   schedule,
				RunOnStart: runNow,
			}, func(ctx context.Context) error {
				summary, err := a.runOnce(ctx, name)
				if err != nil {
					return err
				}
				if summary != nil && summary.Failed() > 0 {
					return fmt.Errorf("%d of %d device(s) failed", summary.Failed(), len(summary.Outcomes))
				}
				return nil
			}, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("scheduled runs enabled", zap.String("workflow", name), zap.String("schedule", schedule))
			return s.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&every, "every", "", "interval or cron expression (defaults to schedule from config)")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
	return cmd
}
