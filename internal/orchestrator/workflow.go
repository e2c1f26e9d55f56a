package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/madupadilshan/Network-Automation/internal/backup"
	"github.com/madupadilshan/Network-Automation/internal/commands"
	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/session"
)

// Step is one feature's ordered command set, applied as a unit.
type Step struct {
	Feature  string
	Commands []string
}

// Plan is what a workflow wants done on one device.
type Plan struct {
	Steps []Step
	// Verify is a read-only command run after configuration. Its output is
	// recorded, never asserted.
	Verify string
	// Save persists the running configuration after the steps.
	Save bool
}

// Empty reports whether the plan has no configuration to apply.
func (p Plan) Empty() bool {
	for _, s := range p.Steps {
		if len(s.Commands) > 0 {
			return false
		}
	}
	return true
}

// Commands flattens the plan's configuration commands in apply order.
func (p Plan) Commands() []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.Commands...)
	}
	return out
}

// Workflow renders the per-device plan for one feature.
type Workflow interface {
	Name() string
	Plan(device inventory.Device) (Plan, error)
}

// Targeted is implemented by workflows driven by a declarative mapping.
// Targets returns every device name the mapping references.
type Targeted interface {
	Targets() []string
}

// Collected is what a Collector produced for one device.
type Collected struct {
	Artifact string
	Detail   string
}

// Collector is implemented by read-only workflows that gather state from an
// open session instead of pushing configuration.
type Collector interface {
	Collect(ctx context.Context, device inventory.Device, sess session.Session) (Collected, error)
}

// InterfacesWorkflow configures physical interfaces. Each interface is its
// own step so a rejected interface leaves the earlier ones applied.
type InterfacesWorkflow struct {
	Specs map[string][]inventory.InterfaceSpec
}

func (w *InterfacesWorkflow) Name() string { return "interfaces" }

func (w *InterfacesWorkflow) Targets() []string { return inventory.Keys(w.Specs) }

func (w *InterfacesWorkflow) Plan(device inventory.Device) (Plan, error) {
	specs := w.Specs[device.Name]
	if len(specs) == 0 {
		return Plan{}, nil
	}
	plan := Plan{Verify: commands.ShowInterfaceBrief, Save: true}
	for _, spec := range specs {
		cmds, err := commands.Interface(spec)
		if err != nil {
			return Plan{}, err
		}
		plan.Steps = append(plan.Steps, Step{Feature: "interface " + spec.Name, Commands: cmds})
	}
	return plan, nil
}

// VLANsWorkflow configures dot1Q subinterfaces for router-on-a-stick.
type VLANsWorkflow struct {
	VLANs *inventory.VLANPlan
}

func (w *VLANsWorkflow) Name() string { return "vlans" }

func (w *VLANsWorkflow) Targets() []string {
	if w.VLANs == nil {
		return nil
	}
	return inventory.Keys(w.VLANs.Subinterfaces)
}

func (w *VLANsWorkflow) Plan(device inventory.Device) (Plan, error) {
	if w.VLANs == nil {
		return Plan{}, nil
	}
	specs := w.VLANs.Subinterfaces[device.Name]
	if len(specs) == 0 {
		return Plan{}, nil
	}
	plan := Plan{Verify: commands.ShowSubinterfaceBrief, Save: true}
	for _, spec := range specs {
		cmds, err := commands.Subinterface(spec)
		if err != nil {
			return Plan{}, err
		}
		plan.Steps = append(plan.Steps, Step{
			Feature:  fmt.Sprintf("subinterface %s.%d", spec.Interface, spec.VLAN),
			Commands: cmds,
		})
	}
	return plan, nil
}

// RoutingWorkflow configures OSPF then EIGRP, whichever are enabled.
type RoutingWorkflow struct {
	Routing *inventory.RoutingSpec
}

func (w *RoutingWorkflow) Name() string { return "routing" }

func (w *RoutingWorkflow) Targets() []string {
	if w.Routing == nil {
		return nil
	}
	return w.Routing.Devices()
}

func (w *RoutingWorkflow) Plan(device inventory.Device) (Plan, error) {
	if w.Routing == nil {
		return Plan{}, nil
	}
	plan := Plan{Verify: commands.ShowIPRoute, Save: true}
	if w.Routing.OSPFEnabled() {
		if cmds := commands.OSPF(device.Name, *w.Routing.OSPF); len(cmds) > 0 {
			plan.Steps = append(plan.Steps, Step{Feature: "ospf", Commands: cmds})
		}
	}
	if w.Routing.EIGRPEnabled() {
		if cmds := commands.EIGRP(device.Name, *w.Routing.EIGRP); len(cmds) > 0 {
			plan.Steps = append(plan.Steps, Step{Feature: "eigrp", Commands: cmds})
		}
	}
	return plan, nil
}

// BackupWorkflow captures the running configuration of every device and
// remembers which devices succeeded for the index.
type BackupWorkflow struct {
	Manager *backup.Manager

	mu      sync.Mutex
	entries map[string]backup.IndexEntry
}

// NewBackupWorkflow creates a backup workflow writing into m.
func NewBackupWorkflow(m *backup.Manager) *BackupWorkflow {
	return &BackupWorkflow{Manager: m, entries: map[string]backup.IndexEntry{}}
}

func (w *BackupWorkflow) Name() string { return "backup" }

// Plan is empty; backups change nothing on the device.
func (w *BackupWorkflow) Plan(inventory.Device) (Plan, error) { return Plan{}, nil }

func (w *BackupWorkflow) Collect(ctx context.Context, device inventory.Device, sess session.Session) (Collected, error) {
	config, err := sess.Execute(ctx, commands.ShowRunningConfig)
	if err != nil {
		return Collected{}, err
	}
	version, err := sess.Execute(ctx, commands.ShowVersion)
	if err != nil {
		return Collected{}, err
	}
	art, err := w.Manager.Capture(backup.Record{
		Device:  device.Name,
		Address: device.Address,
		Config:  config,
		Version: backup.VersionLine(version),
	})
	if err != nil {
		return Collected{}, err
	}

	w.mu.Lock()
	if w.entries == nil {
		w.entries = map[string]backup.IndexEntry{}
	}
	w.entries[device.Name] = backup.IndexEntry{Device: device.Name, File: filepath.Base(art.Timestamped)}
	w.mu.Unlock()

	return Collected{Artifact: art.Timestamped, Detail: fmt.Sprintf("%d bytes of configuration", len(config))}, nil
}

// WriteIndex rebuilds the backup index from the devices that succeeded in
// summary, in run order. It writes nothing when no device succeeded.
func (w *BackupWorkflow) WriteIndex(summary *Summary) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var latest []backup.IndexEntry
	for _, o := range summary.Outcomes {
		if !o.Success() {
			continue
		}
		if e, ok := w.entries[o.Device]; ok {
			latest = append(latest, e)
		}
	}
	return w.Manager.WriteIndex(latest)
}

// CheckWorkflow is a read-only connectivity check. Commands the platform
// rejects are noted in the detail; only transport failures fail the device.
type CheckWorkflow struct {
	// Clock times the round trip; nil uses time.Now.
	Clock func() time.Time
}

func (CheckWorkflow) Name() string { return "check" }

func (CheckWorkflow) Plan(inventory.Device) (Plan, error) { return Plan{}, nil }

func (w CheckWorkflow) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

func (w CheckWorkflow) Collect(ctx context.Context, device inventory.Device, sess session.Session) (Collected, error) {
	start := w.now()
	var lines []string
	for _, cmd := range []string{commands.ShowHostname, commands.ShowInterfaceBrief, commands.ShowIPSSH, commands.ShowUsers} {
		out, err := sess.Execute(ctx, cmd)
		switch {
		case errors.Is(err, session.ErrRejected):
			lines = append(lines, cmd+": not supported")
		case err != nil:
			return Collected{}, err
		case cmd == commands.ShowHostname:
			lines = append(lines, "hostname: "+strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "hostname")))
		default:
			lines = append(lines, fmt.Sprintf("%s: %d lines", cmd, strings.Count(out, "\n")+1))
		}
	}
	lines = append(lines, "rtt: "+w.now().Sub(start).Round(time.Millisecond).String())
	return Collected{Detail: strings.Join(lines, "; ")}, nil
}
