package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
	"github.com/madupadilshan/Network-Automation/internal/session"
)

// target scripts how one fake device behaves.
type target struct {
	// openErrs is consumed one per open attempt; a nil entry succeeds.
	openErrs []error
	outputs  map[string]string
	// reject makes the CLI refuse a command with an invalid-input marker.
	reject map[string]bool
	// execErr fails Execute of a command with a transport-level error.
	execErr map[string]error
	hold    time.Duration
}

type fakeDialer struct {
	mu       sync.Mutex
	targets  map[string]*target
	opens    map[string]int
	closes   map[string]int
	applied  map[string][]string
	executed map[string][]string
	inflight int
	peak     int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		targets:  map[string]*target{},
		opens:    map[string]int{},
		closes:   map[string]int{},
		applied:  map[string][]string{},
		executed: map[string][]string{},
	}
}

func (d *fakeDialer) Open(ctx context.Context, device inventory.Device, _ session.Credential) (session.Session, error) {
	d.mu.Lock()
	d.opens[device.Name]++
	attempt := d.opens[device.Name]
	t := d.targets[device.Name]
	if t == nil {
		t = &target{}
	}
	if attempt <= len(t.openErrs) && t.openErrs[attempt-1] != nil {
		d.mu.Unlock()
		return nil, t.openErrs[attempt-1]
	}
	d.inflight++
	if d.inflight > d.peak {
		d.peak = d.inflight
	}
	d.mu.Unlock()

	if t.hold > 0 {
		select {
		case <-time.After(t.hold):
		case <-ctx.Done():
		}
	}
	return &fakeSession{d: d, name: device.Name, t: t}, nil
}

func (d *fakeDialer) count(m map[string]int, name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return m[name]
}

func (d *fakeDialer) commandsFor(m map[string][]string, name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), m[name]...)
}

type fakeSession struct {
	d    *fakeDialer
	name string
	t    *target
	once sync.Once
}

func (s *fakeSession) Execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &session.CommandError{Device: s.name, Command: command, Err: err}
	}
	s.d.mu.Lock()
	s.d.executed[s.name] = append(s.d.executed[s.name], command)
	s.d.mu.Unlock()
	if s.t.reject[command] {
		return "", &session.CommandError{Device: s.name, Command: command, Err: fmt.Errorf("%w: %% Invalid input detected", session.ErrRejected)}
	}
	if err := s.t.execErr[command]; err != nil {
		return "", &session.CommandError{Device: s.name, Command: command, Err: err}
	}
	return s.t.outputs[command], nil
}

func (s *fakeSession) Apply(ctx context.Context, commands []string) (string, error) {
	var transcript string
	if err := ctx.Err(); err != nil {
		return "", &session.CommandError{Device: s.name, Command: commands[0], Err: err}
	}
	for i, c := range commands {
		s.d.mu.Lock()
		s.d.applied[s.name] = append(s.d.applied[s.name], c)
		s.d.mu.Unlock()
		transcript += s.name + "(config)#" + c + "\n"
		if s.t.reject[c] {
			return transcript, &session.CommandError{Device: s.name, Command: c, Index: i, Transcript: transcript, Err: fmt.Errorf("%w: %% Invalid input detected", session.ErrRejected)}
		}
	}
	return transcript, nil
}

func (s *fakeSession) Close() error {
	s.once.Do(func() {
		s.d.mu.Lock()
		s.d.closes[s.name]++
		s.d.inflight--
		s.d.mu.Unlock()
	})
	return nil
}

func connErr(device, reason string) error {
	return &session.ConnectionError{Device: device, Address: device + ":22", Reason: reason, Err: fmt.Errorf("%s", reason)}
}
