// Package session adapts remote device management channels (SSH or telnet)
// into a uniform CLI session: open with privilege elevation, execute
// read-only commands, apply ordered configuration sets, close.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

const (
	// DefaultConnectTimeout bounds dial, login and privilege elevation.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultCommandTimeout bounds a single command round trip.
	DefaultCommandTimeout = 30 * time.Second

	loginAttempts = 4
)

// Credential is the process-wide login material. It is never written to
// artifacts or logs.
type Credential struct {
	Username string
	Password string
	Secret   string
}

// String redacts everything but the username.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{Username: %q, Password: <redacted>, Secret: <redacted>}", c.Username)
}

// Session is an authenticated, privileged CLI channel to one device.
type Session interface {
	// Execute runs one read-oriented command and returns its output.
	Execute(ctx context.Context, command string) (string, error)
	// Apply enters configuration mode and runs commands strictly in order.
	// It stops at the first rejected command without rolling back the ones
	// before it.
	Apply(ctx context.Context, commands []string) (string, error)
	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Open(ctx context.Context, device inventory.Device, cred Credential) (Session, error)
}

// Options tune the CLI dialer.
type Options struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	// KnownHostsFile enables SSH host key verification when set.
	KnownHostsFile string
	Logger         *zap.Logger
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: DefaultConnectTimeout,
		CommandTimeout: DefaultCommandTimeout,
	}
}

// CLIDialer opens Cisco-style CLI sessions, choosing SSH or telnet from the
// device kind.
type CLIDialer struct {
	opts Options
}

// NewDialer creates a dialer, filling unset options with defaults.
func NewDialer(opts Options) *CLIDialer {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CLIDialer{opts: opts}
}

// Open connects, logs in and elevates to privileged mode. Every failure is
// returned as a *ConnectionError.
func (d *CLIDialer) Open(ctx context.Context, device inventory.Device, cred Credential) (Session, error) {
	address := Address(device)
	ctx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()

	var (
		s   *cliSession
		err error
	)
	if device.Telnet() {
		s, err = d.openTelnet(ctx, device, address)
	} else {
		s, err = d.openSSH(ctx, device, address, cred)
	}
	if err != nil {
		return nil, &ConnectionError{Device: device.Name, Address: address, Reason: classify(err), Err: err}
	}
	if err := s.start(ctx, cred); err != nil {
		_ = s.Close()
		return nil, &ConnectionError{Device: device.Name, Address: address, Reason: classify(err), Err: err}
	}
	d.opts.Logger.Debug("session opened",
		zap.String("device", device.Name),
		zap.String("address", address),
		zap.String("hostname", s.hostname),
	)
	return s, nil
}

// Address returns host:port for a device.
func Address(device inventory.Device) string {
	port := device.Port
	if port <= 0 {
		port = inventory.DefaultSSHPort
		if device.Telnet() {
			port = inventory.DefaultTelnetPort
		}
	}
	return net.JoinHostPort(strings.TrimSpace(device.Address), strconv.Itoa(port))
}
