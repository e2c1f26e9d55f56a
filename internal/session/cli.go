package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

const (
	cmdEnable        = "enable"
	cmdTerminalLen   = "terminal length 0"
	cmdConfigure     = "configure terminal"
	cmdEnd           = "end"
	privilegedMarker = "#"
)

// cliSession drives a Cisco IOS style CLI over any byte stream.
type cliSession struct {
	device   inventory.Device
	con      *console
	opts     Options
	hostname string
	prompt   *regexp.Regexp

	closeOnce sync.Once
	closeErr  error
}

func newCLISession(device inventory.Device, con *console, opts Options) *cliSession {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &cliSession{device: device, con: con, opts: opts}
}

// start completes any interactive login, learns the hostname from the
// prompt, elevates to privileged mode and disables paging.
func (s *cliSession) start(ctx context.Context, cred Credential) error {
	mode, err := s.login(ctx, cred)
	if err != nil {
		return err
	}
	if mode != privilegedMarker {
		if mode, err = s.enable(ctx, cred); err != nil {
			return err
		}
		if mode != privilegedMarker {
			return errEnableRejected
		}
	}
	if _, err := s.run(ctx, cmdTerminalLen); err != nil {
		return fmt.Errorf("disable paging: %w", err)
	}
	return nil
}

func (s *cliSession) login(ctx context.Context, cred Credential) (string, error) {
	sentUser, sentPass := false, false
	for attempt := 0; attempt < loginAttempts; attempt++ {
		out, which, err := s.con.expect(ctx, s.opts.ConnectTimeout, usernamePrompt, passwordPrompt, genericPrompt)
		if err != nil {
			return "", err
		}
		switch which {
		case 0:
			if sentUser {
				return "", errAuthRejected
			}
			sentUser = true
			if err := s.con.send(cred.Username); err != nil {
				return "", err
			}
		case 1:
			if sentPass {
				return "", errAuthRejected
			}
			sentPass = true
			if err := s.con.send(cred.Password); err != nil {
				return "", err
			}
		case 2:
			m := genericPrompt.FindStringSubmatch(out)
			s.hostname = m[1]
			s.prompt = basePrompt(m[1])
			return m[3], nil
		}
	}
	return "", errNoPrompt
}

func (s *cliSession) enable(ctx context.Context, cred Credential) (string, error) {
	if err := s.con.send(cmdEnable); err != nil {
		return "", err
	}
	out, which, err := s.con.expect(ctx, s.opts.ConnectTimeout, passwordPrompt, s.prompt)
	if err != nil {
		return "", err
	}
	if which == 0 {
		if err := s.con.send(cred.Secret); err != nil {
			return "", err
		}
		out, which, err = s.con.expect(ctx, s.opts.ConnectTimeout, s.prompt, passwordPrompt)
		if err != nil {
			return "", err
		}
		if which == 1 {
			return "", errEnableRejected
		}
	}
	return s.mode(out), nil
}

func (s *cliSession) mode(out string) string {
	m := s.prompt.FindStringSubmatch(out)
	if m == nil {
		return ""
	}
	return m[3]
}

// run sends one line and waits for the prompt, returning the raw output.
func (s *cliSession) run(ctx context.Context, cmd string) (string, error) {
	if s.prompt == nil {
		return "", errNoPrompt
	}
	if err := s.con.send(cmd); err != nil {
		return "", err
	}
	raw, _, err := s.con.expect(ctx, s.opts.CommandTimeout, s.prompt)
	return raw, err
}

// Execute implements Session.
func (s *cliSession) Execute(ctx context.Context, command string) (string, error) {
	raw, err := s.run(ctx, command)
	out := cleanOutput(raw, command)
	if err != nil {
		return out, &CommandError{Device: s.device.Name, Command: command, Output: out, Transcript: normalize(raw), Err: err}
	}
	if marker := cliError(out); marker != "" {
		return out, &CommandError{Device: s.device.Name, Command: command, Output: out, Transcript: normalize(raw), Err: fmt.Errorf("%w: %s", ErrRejected, marker)}
	}
	return out, nil
}

// Apply implements Session.
func (s *cliSession) Apply(ctx context.Context, commands []string) (string, error) {
	var transcript strings.Builder

	raw, err := s.run(ctx, cmdConfigure)
	transcript.WriteString(normalize(raw))
	if err != nil {
		return transcript.String(), &CommandError{Device: s.device.Name, Command: cmdConfigure, Index: -1, Transcript: transcript.String(), Err: err}
	}

	for i, cmd := range commands {
		raw, err := s.run(ctx, cmd)
		transcript.WriteString(normalize(raw))
		out := cleanOutput(raw, cmd)
		if err == nil {
			if marker := cliError(out); marker != "" {
				err = fmt.Errorf("%w: %s", ErrRejected, marker)
			}
		}
		if err != nil {
			s.leaveConfig(ctx, &transcript)
			return transcript.String(), &CommandError{
				Device:     s.device.Name,
				Command:    cmd,
				Index:      i,
				Output:     out,
				Transcript: transcript.String(),
				Err:        err,
			}
		}
	}

	raw, err = s.run(ctx, cmdEnd)
	transcript.WriteString(normalize(raw))
	if err != nil {
		return transcript.String(), &CommandError{Device: s.device.Name, Command: cmdEnd, Index: len(commands), Transcript: transcript.String(), Err: err}
	}
	return transcript.String(), nil
}

// leaveConfig is best effort; the session may already be unusable.
func (s *cliSession) leaveConfig(ctx context.Context, transcript *strings.Builder) {
	if ctx.Err() != nil {
		return
	}
	if raw, err := s.run(ctx, cmdEnd); err == nil {
		transcript.WriteString(normalize(raw))
	}
}

// Close implements Session.
func (s *cliSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.con.close()
	})
	return s.closeErr
}
