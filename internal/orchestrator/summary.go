package orchestrator

import (
	"time"
)

// State is a step of the per-device state machine.
type State string

const (
	StatePending     State = "pending"
	StateConnecting  State = "connecting"
	StateConfiguring State = "configuring"
	StateVerifying   State = "verifying"
	StateSaving      State = "saving"
	StateCapturing   State = "capturing"
	StateDone        State = "done"
	StateErrored     State = "errored"
)

// Status is the final result of one device in a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	// StatusPlanned marks a device whose commands were rendered but not sent
	// because the run was a dry run.
	StatusPlanned Status = "planned"
)

// StepResult is the outcome of applying one feature's commands.
type StepResult struct {
	Feature    string
	Commands   []string
	Transcript string
	Err        error
}

// Outcome is the result of one device's pass through a workflow.
type Outcome struct {
	Device   string
	Address  string
	Workflow string
	Status   Status
	// State is the last state reached. For failures it is the state the
	// device errored in.
	State        State
	Detail       string
	Err          error
	Steps        []StepResult
	Verification string
	Artifact     string
	Attempts     int
	Duration     time.Duration
}

// Success reports whether the device completed its workflow.
func (o Outcome) Success() bool { return o.Status == StatusSuccess }

// Summary aggregates every device outcome of one run, in inventory order.
type Summary struct {
	RunID    string
	Workflow string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Outcomes []Outcome
}

func (s *Summary) count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Succeeded is the number of devices that reached Done.
func (s *Summary) Succeeded() int { return s.count(StatusSuccess) }

// Failed is the number of devices that errored.
func (s *Summary) Failed() int { return s.count(StatusFailed) }

// Skipped is the number of devices with nothing to do.
func (s *Summary) Skipped() int { return s.count(StatusSkipped) }

// Planned is the number of devices rendered by a dry run.
func (s *Summary) Planned() int { return s.count(StatusPlanned) }

// Failures returns the failed outcomes in run order.
func (s *Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration { return s.Finished.Sub(s.Started) }

// Result is "success" when no device failed and "failed" otherwise.
func (s *Summary) Result() string {
	if s.Failed() > 0 {
		return string(StatusFailed)
	}
	return string(StatusSuccess)
}

// ExitCode is the process exit status for the run: 0 unless a device failed.
func (s *Summary) ExitCode() int {
	if s.Failed() > 0 {
		return 1
	}
	return 0
}
