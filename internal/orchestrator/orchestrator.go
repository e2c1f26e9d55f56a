// Package orchestrator drives a workflow across the fleet: one independent
// state machine per device, a bounded worker pool, and one event per
// transition or failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/madupadilshan/Network-Automation/internal/commands"
	"github.com/madupadilshan/Network-Automation/internal/events"
	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/session"
	"github.com/madupadilshan/Network-Automation/internal/telemetry"
)

// MaxConcurrency caps the worker pool regardless of configuration.
const MaxConcurrency = 8

// Options tune a run.
type Options struct {
	// Concurrency is the number of devices processed at once. Values below
	// one mean sequential processing.
	Concurrency int
	Retry       RetryPolicy
	// DryRun renders every plan without contacting any device.
	DryRun bool
	// DialRate limits new sessions per second across the run. Zero means
	// unlimited.
	DialRate float64
	// Inventory names every device in the inventory. Intent entries for
	// devices outside it are reported as unknown. When nil, the devices
	// passed to Run are used, so a filtered run should set it.
	Inventory []string
	Clock     func() time.Time
}

// Orchestrator runs workflows against devices.
type Orchestrator struct {
	dialer  session.Dialer
	cred    session.Credential
	sink    events.Sink
	logger  *zap.Logger
	opts    Options
	limiter *rate.Limiter

	locks sync.Map // address -> *sync.Mutex
}

// New creates an orchestrator. A nil sink discards events.
func New(dialer session.Dialer, cred session.Credential, sink events.Sink, logger *zap.Logger, opts Options) (*Orchestrator, error) {
	if dialer == nil && !opts.DryRun {
		return nil, errors.New("orchestrator: dialer is required")
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		dialer: dialer,
		cred:   cred,
		sink:   sink,
		logger: logger,
		opts:   opts,
	}
	if opts.DialRate > 0 {
		burst := int(opts.DialRate)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(opts.DialRate), burst)
	}
	return o, nil
}

func (o *Orchestrator) now() time.Time { return o.opts.Clock().UTC() }

func (o *Orchestrator) emit(e events.Event) {
	o.sink.Record(events.Stamp(e, o.now()))
}

// Run processes every device through wf and returns the aggregated summary.
// Per-device failures are recorded in the summary, never returned. When ctx
// is canceled, devices not yet started are recorded as failed.
func (o *Orchestrator) Run(ctx context.Context, wf Workflow, devices []inventory.Device) *Summary {
	summary := &Summary{
		RunID:    uuid.NewString(),
		Workflow: wf.Name(),
		DryRun:   o.opts.DryRun,
		Started:  o.now(),
		Outcomes: make([]Outcome, len(devices)),
	}

	ctx, span := telemetry.StartRunSpan(ctx, wf.Name(), summary.RunID, len(devices))
	o.emit(events.Event{
		Kind:     events.KindRunStarted,
		RunID:    summary.RunID,
		Workflow: wf.Name(),
		Message:  fmt.Sprintf("%s run started", wf.Name()),
		Fields: map[string]string{
			"devices": strconv.Itoa(len(devices)),
			"dry_run": strconv.FormatBool(o.opts.DryRun),
		},
	})
	o.reportUnknown(summary.RunID, wf, devices)

	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, device := range devices {
		if err := ctx.Err(); err != nil {
			summary.Outcomes[i] = o.abandon(summary.RunID, wf, device, err)
			continue
		}
		g.Go(func() error {
			summary.Outcomes[i] = o.process(ctx, summary.RunID, wf, device)
			return nil
		})
	}
	_ = g.Wait()

	summary.Finished = o.now()
	telemetry.EndRunSpan(span, summary.Succeeded(), summary.Failed(), summary.Skipped())
	o.emit(events.Event{
		Kind:     events.KindRunFinished,
		RunID:    summary.RunID,
		Workflow: wf.Name(),
		Message:  fmt.Sprintf("%s run finished", wf.Name()),
		Duration: summary.Duration(),
		Time:     summary.Finished,
		Fields: map[string]string{
			"succeeded": strconv.Itoa(summary.Succeeded()),
			"failed":    strconv.Itoa(summary.Failed()),
			"skipped":   strconv.Itoa(summary.Skipped()),
			"result":    summary.Result(),
		},
	})
	return summary
}

func (o *Orchestrator) reportUnknown(runID string, wf Workflow, devices []inventory.Device) {
	t, ok := wf.(Targeted)
	if !ok {
		return
	}
	known := make(map[string]struct{}, len(devices)+len(o.opts.Inventory))
	for _, d := range devices {
		known[d.Name] = struct{}{}
	}
	for _, name := range o.opts.Inventory {
		known[name] = struct{}{}
	}
	for _, name := range t.Targets() {
		if _, ok := known[name]; !ok {
			events.RecordUnknownDevice(o.sink, runID, wf.Name(), name)
		}
	}
}

// abandon records a device the run never started because it was canceled.
func (o *Orchestrator) abandon(runID string, wf Workflow, device inventory.Device, err error) Outcome {
	out := Outcome{
		Device:   device.Name,
		Address:  device.Address,
		Workflow: wf.Name(),
		Status:   StatusFailed,
		State:    StatePending,
		Err:      err,
		Detail:   "run canceled before device was processed",
	}
	o.emit(events.Event{
		Kind:     events.KindFailure,
		RunID:    runID,
		Workflow: wf.Name(),
		Device:   device.Name,
		State:    string(StatePending),
		Message:  out.Detail,
		Err:      err,
	})
	o.done(runID, out, false)
	return out
}

// deviceRun carries the per-device context through the state machine.
type deviceRun struct {
	o      *Orchestrator
	runID  string
	wf     Workflow
	device inventory.Device
	out    Outcome
	dialed bool
}

func (r *deviceRun) transition(state State, fields map[string]string) {
	r.out.State = state
	r.o.emit(events.Event{
		Kind:     events.KindTransition,
		RunID:    r.runID,
		Workflow: r.wf.Name(),
		Device:   r.device.Name,
		State:    string(state),
		Message:  "entering " + string(state),
		Fields:   fields,
	})
}

func (r *deviceRun) fail(state State, err error) Outcome {
	r.out.Status = StatusFailed
	r.out.State = state
	r.out.Err = err
	r.out.Detail = err.Error()

	e := events.Event{
		Kind:     events.KindFailure,
		RunID:    r.runID,
		Workflow: r.wf.Name(),
		Device:   r.device.Name,
		State:    string(state),
		Message:  fmt.Sprintf("%s failed while %s", r.device.Name, state),
		Err:      err,
	}
	var connErr *session.ConnectionError
	if errors.As(err, &connErr) {
		e.Fields = map[string]string{"reason": connErr.Reason}
	}
	r.o.emit(e)
	return r.out
}

func (o *Orchestrator) done(runID string, out Outcome, dialed bool) {
	msg := out.Detail
	if msg == "" {
		msg = string(out.Status)
	}
	o.emit(events.Event{
		Kind:     events.KindDeviceDone,
		RunID:    runID,
		Workflow: out.Workflow,
		Device:   out.Device,
		State:    string(out.State),
		Message:  msg,
		Err:      out.Err,
		Duration: out.Duration,
		Fields: map[string]string{
			"status":   string(out.Status),
			"attempts": strconv.Itoa(out.Attempts),
			"artifact": out.Artifact,
			"dialed":   strconv.FormatBool(dialed),
		},
	})
}

func (o *Orchestrator) process(ctx context.Context, runID string, wf Workflow, device inventory.Device) (result Outcome) {
	started := o.now()
	r := &deviceRun{
		o:      o,
		runID:  runID,
		wf:     wf,
		device: device,
		out: Outcome{
			Device:   device.Name,
			Address:  device.Address,
			Workflow: wf.Name(),
			State:    StatePending,
		},
	}

	ctx, span := telemetry.StartDeviceSpan(ctx, device.Name, device.Address, device.Kind)
	defer func() {
		result.Duration = o.now().Sub(started)
		telemetry.EndDeviceSpan(span, string(result.Status), string(result.State), result.Err)
		o.done(runID, result, r.dialed)
	}()

	plan, err := wf.Plan(device)
	if err != nil {
		return r.fail(StatePending, err)
	}
	collector, collects := wf.(Collector)
	if plan.Empty() && !collects {
		r.out.Status = StatusSkipped
		r.out.Detail = fmt.Sprintf("no %s configuration for %s", wf.Name(), device.Name)
		return r.out
	}

	if o.opts.DryRun {
		r.out.Status = StatusPlanned
		for _, step := range plan.Steps {
			r.out.Steps = append(r.out.Steps, StepResult{Feature: step.Feature, Commands: step.Commands})
		}
		r.out.Detail = strings.Join(plan.Commands(), "\n")
		return r.out
	}

	unlock := o.lockDevice(device)
	defer unlock()

	r.dialed = true
	sess, err := r.connect(ctx)
	if err != nil {
		return r.fail(StateConnecting, err)
	}
	closeSession := sync.OnceFunc(func() {
		if err := sess.Close(); err != nil {
			o.logger.Debug("session close", zap.String("device", device.Name), zap.Error(err))
		}
	})
	defer closeSession()

	if !plan.Empty() {
		r.transition(StateConfiguring, nil)
		for _, step := range plan.Steps {
			if len(step.Commands) == 0 {
				continue
			}
			pctx, pspan := telemetry.StartPhaseSpan(ctx, "configuring", len(step.Commands))
			transcript, err := sess.Apply(pctx, step.Commands)
			telemetry.EndPhaseSpan(pspan, err)
			r.out.Steps = append(r.out.Steps, StepResult{Feature: step.Feature, Commands: step.Commands, Transcript: transcript, Err: err})
			if err != nil {
				return r.fail(StateConfiguring, fmt.Errorf("%s: %w", step.Feature, err))
			}
			o.emit(events.Event{
				Kind:     events.KindStep,
				RunID:    runID,
				Workflow: wf.Name(),
				Device:   device.Name,
				State:    string(StateConfiguring),
				Message:  step.Feature + " applied",
				Fields:   map[string]string{"commands": strconv.Itoa(len(step.Commands))},
			})
		}
	}

	if plan.Verify != "" {
		r.transition(StateVerifying, nil)
		output, err := sess.Execute(ctx, plan.Verify)
		r.out.Verification = output
		e := events.Event{
			Kind:     events.KindVerify,
			RunID:    runID,
			Workflow: wf.Name(),
			Device:   device.Name,
			State:    string(StateVerifying),
			Message:  plan.Verify,
			Fields:   map[string]string{"output": output},
		}
		if err != nil {
			e.Message = plan.Verify + " failed, continuing"
			e.Err = err
		}
		o.emit(e)
		if ctx.Err() != nil {
			return r.fail(StateVerifying, ctx.Err())
		}
	}

	if plan.Save {
		r.transition(StateSaving, nil)
		if _, err := sess.Execute(ctx, commands.WriteMemory); err != nil {
			return r.fail(StateSaving, err)
		}
	}

	if collects {
		r.transition(StateCapturing, nil)
		pctx, pspan := telemetry.StartPhaseSpan(ctx, "capturing", 0)
		got, err := collector.Collect(pctx, device, sess)
		telemetry.EndPhaseSpan(pspan, err)
		if err != nil {
			return r.fail(StateCapturing, err)
		}
		r.out.Artifact = got.Artifact
		r.out.Detail = got.Detail
		if got.Artifact != "" {
			o.emit(events.Event{
				Kind:     events.KindArtifact,
				RunID:    runID,
				Workflow: wf.Name(),
				Device:   device.Name,
				State:    string(StateCapturing),
				Message:  got.Artifact,
			})
		}
	}

	closeSession()
	r.transition(StateDone, nil)
	r.out.Status = StatusSuccess
	if r.out.Detail == "" {
		r.out.Detail = fmt.Sprintf("%d step(s) applied", len(r.out.Steps))
	}
	return r.out
}

// connect opens a session, retrying retryable failures per the policy.
func (r *deviceRun) connect(ctx context.Context) (session.Session, error) {
	policy := r.o.opts.Retry
	for attempt := 1; ; attempt++ {
		r.out.Attempts = attempt
		r.transition(StateConnecting, map[string]string{"attempt": strconv.Itoa(attempt)})
		if r.o.limiter != nil {
			if err := r.o.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		pctx, span := telemetry.StartPhaseSpan(ctx, "connecting", 0)
		sess, err := r.o.dialer.Open(pctx, r.device, r.o.cred)
		telemetry.EndPhaseSpan(span, err)
		if err == nil {
			return sess, nil
		}
		if attempt >= policy.MaxAttempts || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		delay := policy.NextDelay(attempt)
		e := events.Event{
			Kind:     events.KindFailure,
			RunID:    r.runID,
			Workflow: r.wf.Name(),
			Device:   r.device.Name,
			State:    string(StateConnecting),
			Message:  fmt.Sprintf("attempt %d failed, retrying in %s", attempt, delay),
			Err:      err,
			Fields:   map[string]string{"retry": "true"},
		}
		var connErr *session.ConnectionError
		if errors.As(err, &connErr) {
			e.Fields["reason"] = connErr.Reason
		}
		r.o.emit(e)
		if serr := sleepContext(ctx, delay); serr != nil {
			return nil, serr
		}
	}
}

// lockDevice serializes sessions to the same management address.
func (o *Orchestrator) lockDevice(device inventory.Device) func() {
	v, _ := o.locks.LoadOrStore(session.Address(device), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
