package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madupadilshan/Network-Automation/internal/backup"
	"github.com/madupadilshan/Network-Automation/internal/config"
	"github.com/madupadilshan/Network-Automation/internal/events"
	"github.com/madupadilshan/Network-Automation/internal/history"
	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/metrics"
	"github.com/madupadilshan/Network-Automation/internal/notify"
	"github.com/madupadilshan/Network-Automation/internal/orchestrator"
	"github.com/madupadilshan/Network-Automation/internal/session"
	"github.com/madupadilshan/Network-Automation/internal/telemetry"
)

// dialerFactory builds the session dialer. Tests replace it.
var dialerFactory = func(opts session.Options) session.Dialer {
	return session.NewDialer(opts)
}

// errNothingToDo means the intent files enable nothing for this workflow.
var errNothingToDo = errors.New("nothing to do")

// app is the per-invocation wiring: configuration, logging, history and
// tracing, shared by every run the invocation performs.
type app struct {
	flags    *globalFlags
	cfg      config.Config
	console  *console
	logger   *zap.Logger
	closeLog func() error
	store    *history.Store
	notifier *notify.Router
	shutdown func(context.Context) error
}

func newApp(cmd *cobra.Command, flags *globalFlags, workflow string) (*app, error) {
	cfg, err := flags.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := events.NewLogger(cfg.LogFile(workflow), cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{
		flags:    flags,
		cfg:      cfg,
		console:  newConsole(cmd.OutOrStdout()),
		logger:   logger,
		closeLog: closeLog,
	}

	a.shutdown, err = telemetry.InitTraceProvider(cmd.Context(), cfg.OTLPEndpoint, version)
	if err != nil {
		a.close()
		return nil, err
	}
	if cfg.HistoryDB != "" {
		a.store, err = history.Open(cfg.HistoryDB, logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}
	a.notifier = newNotifier(cfg.Notify, logger)
	return a, nil
}

// newNotifier returns nil when no endpoint is configured. Channels
// subscribe at warning unless clean runs are reported too.
func newNotifier(cfg config.NotifyConfig, logger *zap.Logger) *notify.Router {
	if !cfg.Enabled() {
		return nil
	}
	var channels []notify.Channel
	if cfg.SlackWebhook != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.SlackWebhook, cfg.SlackChannel))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookHeaders))
	}
	var routes notify.SeverityRoute
	if cfg.OnSuccess {
		routes.Info = channels
	} else {
		routes.Warning = channels
	}
	var limiter *notify.RateLimiter
	if cfg.MaxPerHour > 0 {
		limiter = notify.NewRateLimiter(cfg.MaxPerHour)
	}
	return notify.NewRouter(routes, limiter, logger)
}

func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("tracing shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close history", zap.Error(err))
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func (a *app) sink() events.Sink {
	sinks := events.Multi{
		events.NewLogSink(a.logger),
		metrics.Sink{},
		a.console.sink(),
	}
	if a.store != nil {
		sinks = append(sinks, a.store)
	}
	return sinks
}

// runOnce loads the inventory and intent for workflow and runs it. It
// returns a nil summary when there is nothing to do.
func (a *app) runOnce(ctx context.Context, name string) (*orchestrator.Summary, error) {
	fleet, err := inventory.LoadFleet(inventory.Path(a.cfg.ConfigDir, inventory.InventoryFile))
	if err != nil {
		return nil, err
	}
	devices, err := selectDevices(fleet, a.flags.devices)
	if err != nil {
		return nil, err
	}
	wf, err := a.loadWorkflow(name)
	if errors.Is(err, errNothingToDo) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cred session.Credential
	if !a.flags.dryRun {
		cred, err = config.LoadCredentials(a.cfg.EnvFile())
		if err != nil {
			return nil, err
		}
	}

	dialer := dialerFactory(session.Options{
		ConnectTimeout: a.cfg.ConnectTimeout.Std(),
		CommandTimeout: a.cfg.CommandTimeout.Std(),
		KnownHostsFile: a.cfg.KnownHostsFile,
		Logger:         a.logger,
	})
	orch, err := orchestrator.New(dialer, cred, a.sink(), a.logger, orchestrator.Options{
		Concurrency: a.cfg.Concurrency,
		DryRun:      a.flags.dryRun,
		DialRate:    a.cfg.DialRate,
		Inventory:   fleet.Names(),
		Retry: orchestrator.RetryPolicy{
			MaxAttempts:    a.cfg.Retry.MaxAttempts,
			InitialBackoff: a.cfg.Retry.InitialBackoff.Std(),
			Multiplier:     a.cfg.Retry.Multiplier,
			MaxBackoff:     a.cfg.Retry.MaxBackoff.Std(),
		},
	})
	if err != nil {
		return nil, err
	}

	a.console.banner(name, len(devices), a.flags.dryRun)
	summary := orch.Run(ctx, wf, devices)

	var location string
	if bw, ok := wf.(*orchestrator.BackupWorkflow); ok && !a.flags.dryRun {
		if _, err := bw.WriteIndex(summary); err != nil {
			a.logger.Error("write backup index", zap.Error(err))
		}
		location = a.cfg.BackupDir
		if abs, err := filepath.Abs(location); err == nil {
			location = abs
		}
	}
	a.console.summary(summary, location)

	if a.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			a.logger.Warn("write metrics textfile", zap.String("path", a.cfg.MetricsFile), zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Err(); err != nil {
			a.logger.Warn("run history incomplete", zap.Error(err))
		}
	}
	if a.notifier != nil && !summary.DryRun {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		a.notifier.Notify(nctx, notify.Report(summary))
		cancel()
	}
	return summary, nil
}

func (a *app) loadWorkflow(name string) (orchestrator.Workflow, error) {
	dir := a.cfg.ConfigDir
	switch name {
	case "interfaces":
		specs, err := inventory.LoadInterfaces(inventory.Path(dir, inventory.InterfacesFile))
		if err != nil {
			return nil, err
		}
		return &orchestrator.InterfacesWorkflow{Specs: specs}, nil
	case "vlans":
		plan, err := inventory.LoadVLANs(inventory.Path(dir, inventory.VLANsFile))
		if err != nil {
			return nil, err
		}
		a.console.vlanCatalogue(plan.VLANs)
		return &orchestrator.VLANsWorkflow{VLANs: plan}, nil
	case "routing":
		spec, err := inventory.LoadRouting(inventory.Path(dir, inventory.RoutingFile))
		if err != nil {
			return nil, err
		}
		if !spec.OSPFEnabled() && !spec.EIGRPEnabled() {
			a.console.warn("No routing protocols enabled in " + inventory.RoutingFile)
			a.logger.Warn("no routing protocols enabled")
			return nil, errNothingToDo
		}
		return &orchestrator.RoutingWorkflow{Routing: spec}, nil
	case "backup":
		return orchestrator.NewBackupWorkflow(backup.NewManager(a.cfg.BackupDir)), nil
	case "check":
		return orchestrator.CheckWorkflow{}, nil
	}
	return nil, fmt.Errorf("unknown workflow %q", name)
}

func selectDevices(fleet *inventory.Fleet, names []string) ([]inventory.Device, error) {
	if len(names) == 0 {
		return fleet.Devices(), nil
	}
	if unknown := fleet.Unknown(names); len(unknown) > 0 {
		return nil, fmt.Errorf("devices not in inventory: %v", unknown)
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []inventory.Device
	for _, d := range fleet.Devices() {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}

// runWorkflow is the RunE body shared by the workflow commands.
func runWorkflow(cmd *cobra.Command, flags *globalFlags, name string) error {
	a, err := newApp(cmd, flags, name)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := a.runOnce(cmd.Context(), name)
	if err != nil {
		a.logger.Error("run aborted", zap.String("workflow", name), zap.Error(err))
		return err
	}
	if summary != nil && summary.ExitCode() != 0 {
		return &exitError{code: summary.ExitCode(), failed: summary.Failed()}
	}
	return nil
}

func newWorkflowCmd(flags *globalFlags, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorkflow(cmd, flags, name)
		},
	}
}
