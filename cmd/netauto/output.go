package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/madupadilshan/Network-Automation/internal/events"
	"github.com/madupadilshan/Network-Automation/internal/history"
	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/orchestrator"
)

var (
	colorSuccess = lipgloss.Color("#2ECC71")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorAccent  = lipgloss.Color("#3498DB")
	colorMuted   = lipgloss.Color("#7F8C8D")
)

type styleSet struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}

// newStyles binds the palette to a renderer so colour support is detected
// from the writer the console prints to.
func newStyles(r *lipgloss.Renderer) styleSet {
	return styleSet{
		Title:   r.NewStyle().Bold(true).Foreground(colorAccent),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(colorMuted),
		Success: r.NewStyle().Foreground(colorSuccess),
		Warning: r.NewStyle().Foreground(colorWarning),
		Error:   r.NewStyle().Foreground(colorError),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1),
	}
}

var workflowTitles = map[string]string{
	"interfaces": "Interface Configuration",
	"vlans":      "VLAN Configuration",
	"routing":    "Routing Configuration",
	"backup":     "Configuration Backup",
	"check":      "Connectivity Check",
}

// console renders operator-facing output. Device lines may arrive from
// several workers at once.
type console struct {
	mu sync.Mutex
	w  io.Writer
	st styleSet
}

func newConsole(w io.Writer) *console {
	return &console{w: w, st: newStyles(lipgloss.NewRenderer(w))}
}

func (c *console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, s)
}

func (c *console) banner(workflow string, devices int, dryRun bool) {
	styles := c.st
	title := workflowTitles[workflow]
	if title == "" {
		title = workflow
	}
	sub := fmt.Sprintf("%d device(s)", devices)
	if dryRun {
		sub += " · dry run, no device will be contacted"
	}
	c.println(styles.Box.Render(styles.Title.Render(title) + "\n" + styles.Muted.Render(sub)))
}

func (c *console) warn(msg string) {
	c.println(c.st.Warning.Render("⚠ " + msg))
}

// sink prints one line per finished device and per unknown device.
func (c *console) sink() events.Sink {
	return events.SinkFunc(func(e events.Event) {
		switch e.Kind {
		case events.KindUnknownDevice:
			c.warn(fmt.Sprintf("Router %s not found in inventory, skipping", e.Device))
		case events.KindDeviceDone:
			c.println(c.deviceLine(e))
		}
	})
}

func (c *console) deviceLine(e events.Event) string {
	styles := c.st
	elapsed := styles.Muted.Render(fmt.Sprintf("(%s)", e.Duration.Round(10*time.Millisecond)))
	name := styles.Bold.Render(e.Device)
	switch orchestrator.Status(e.Fields["status"]) {
	case orchestrator.StatusSuccess:
		return fmt.Sprintf("%s %s %s %s", styles.Success.Render("✓"), name, e.Message, elapsed)
	case orchestrator.StatusSkipped:
		return fmt.Sprintf("%s %s %s", styles.Muted.Render("○"), name, styles.Muted.Render(e.Message))
	case orchestrator.StatusPlanned:
		lines := []string{fmt.Sprintf("%s %s would apply:", styles.Title.Render("→"), name)}
		for _, cmd := range strings.Split(e.Message, "\n") {
			lines = append(lines, "    "+cmd)
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%s %s failed in %s: %s %s", styles.Error.Render("✗"), name, e.State, styles.Error.Render(e.Message), elapsed)
	}
}

func (c *console) summary(s *orchestrator.Summary, backupLocation string) {
	styles := c.st
	var b strings.Builder
	b.WriteString(styles.Title.Render("Summary") + "\n")
	fmt.Fprintf(&b, "  Successful: %s\n", styles.Success.Render(fmt.Sprint(s.Succeeded())))
	fmt.Fprintf(&b, "  Failed:     %s\n", c.failedStyle(s.Failed()).Render(fmt.Sprint(s.Failed())))
	if n := s.Skipped(); n > 0 {
		fmt.Fprintf(&b, "  Skipped:    %d\n", n)
	}
	if n := s.Planned(); n > 0 {
		fmt.Fprintf(&b, "  Planned:    %d\n", n)
	}
	fmt.Fprintf(&b, "  Duration:   %s\n", s.Duration().Round(time.Millisecond))
	if backupLocation != "" {
		fmt.Fprintf(&b, "  Backups saved to: %s\n", backupLocation)
	}
	fmt.Fprintf(&b, "  %s", styles.Muted.Render("run "+s.RunID))
	c.println(b.String())
}

func (c *console) failedStyle(n int) lipgloss.Style {
	if n > 0 {
		return c.st.Error
	}
	return c.st.Muted
}

func (c *console) vlanCatalogue(vlans []inventory.VLANDefinition) {
	styles := c.st
	if len(vlans) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render("VLANs defined") + "\n")
	for _, v := range vlans {
		fmt.Fprintf(&b, "  VLAN %d: %s", v.ID, styles.Bold.Render(v.Name))
		if v.Description != "" {
			b.WriteString(" " + styles.Muted.Render("- "+v.Description))
		}
		b.WriteString("\n")
	}
	c.println(strings.TrimRight(b.String(), "\n"))
}

func (c *console) runs(runs []history.Run) {
	styles := c.st
	if len(runs) == 0 {
		c.println(styles.Muted.Render("No runs recorded."))
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s  %-10s  %-19s  %4s  %4s  %4s\n", "RUN", "WORKFLOW", "STARTED", "OK", "FAIL", "SKIP")
	for _, r := range runs {
		status := styles.Success
		if r.Failed > 0 {
			status = styles.Error
		}
		line := fmt.Sprintf("%-36s  %-10s  %-19s  %4d  %4d  %4d", r.ID, r.Workflow, r.Started.Local().Format("2006-01-02 15:04:05"), r.Succeeded, r.Failed, r.Skipped)
		if r.DryRun {
			line += "  (dry run)"
		}
		b.WriteString(status.Render(line) + "\n")
	}
	c.println(strings.TrimRight(b.String(), "\n"))
}

func (c *console) outcomes(run history.Run, outcomes []history.Outcome) {
	styles := c.st
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", styles.Title.Render(run.Workflow), styles.Muted.Render(run.ID))
	fmt.Fprintf(&b, "Started %s, finished %s\n", run.Started.Local().Format(time.RFC3339), run.Finished.Local().Format(time.RFC3339))
	for _, o := range outcomes {
		mark := styles.Success.Render("✓")
		detail := o.Detail
		switch o.Status {
		case string(orchestrator.StatusFailed):
			mark = styles.Error.Render("✗")
			detail = fmt.Sprintf("%s: %s", o.State, o.Error)
		case string(orchestrator.StatusSkipped), string(orchestrator.StatusPlanned):
			mark = styles.Muted.Render("○")
		}
		fmt.Fprintf(&b, "%s %-12s %s", mark, o.Device, detail)
		if o.Artifact != "" {
			b.WriteString(" " + styles.Muted.Render(o.Artifact))
		}
		b.WriteString("\n")
	}
	c.println(strings.TrimRight(b.String(), "\n"))
}
