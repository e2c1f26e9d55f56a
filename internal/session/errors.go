package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Connection failure reasons.
const (
	ReasonTimeout   = "timeout"
	ReasonAuth      = "authentication rejected"
	ReasonRefused   = "connection refused"
	ReasonPrivilege = "privilege elevation failed"
	ReasonTransport = "transport error"
	ReasonCanceled  = "canceled"
)

var (
	// ErrTimeout is returned when the device does not answer with a prompt in time.
	ErrTimeout = errors.New("timed out waiting for device prompt")
	// ErrRejected is wrapped by a CommandError when the CLI printed an error
	// marker such as "% Invalid input".
	ErrRejected = errors.New("command rejected by device")

	errAuthRejected   = errors.New("login rejected by device")
	errEnableRejected = errors.New("enable secret rejected")
	errNoPrompt       = errors.New("no CLI prompt detected")
	errSessionClosed  = errors.New("session closed")
)

// ConnectionError reports a failed open: dial, login or privilege elevation.
type ConnectionError struct {
	Device  string
	Address string
	Reason  string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s (%s): %s: %v", e.Device, e.Address, e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError reports a command the device rejected or never answered.
// Index is the position of the failing command within an applied set;
// commands before it remain in effect on the device. Transcript holds
// everything the device returned up to and including the failure.
type CommandError struct {
	Device     string
	Command    string
	Index      int
	Output     string
	Transcript string
	Err        error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: command %q failed: %v", e.Device, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return ReasonTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return ReasonTimeout
	case err != nil && strings.Contains(err.Error(), "i/o timeout"):
		return ReasonTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return ReasonRefused
	case errors.Is(err, errAuthRejected):
		return ReasonAuth
	case errors.Is(err, errEnableRejected):
		return ReasonPrivilege
	case err != nil && strings.Contains(err.Error(), "unable to authenticate"):
		return ReasonAuth
	default:
		return ReasonTransport
	}
}
