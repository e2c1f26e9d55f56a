package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

func (d *CLIDialer) clientConfig(cred Credential) (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // lab devices rarely ship stable host keys
	if d.opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(d.opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKey = cb
	}

	// IOS images differ in which of the two methods they offer.
	interactive := ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = cred.Password
		}
		return answers, nil
	})

	return &ssh.ClientConfig{
		User:            cred.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(cred.Password), interactive},
		HostKeyCallback: hostKey,
		Timeout:         d.opts.ConnectTimeout,
	}, nil
}

// openSSH dials, authenticates and starts an interactive shell on a PTY.
// The handshake is bounded by ctx through a connection deadline.
func (d *CLIDialer) openSSH(ctx context.Context, device inventory.Device, address string, cred Credential) (*cliSession, error) {
	config, err := d.clientConfig(cred)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: d.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		stop()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if !stop() {
		_ = c.Close()
		return nil, ctx.Err()
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("new ssh session: %w", err)
	}
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 38400,
		ssh.TTY_OP_OSPEED: 38400,
	}
	if err := sess.RequestPty("vt100", 0, 511, modes); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := sess.Shell(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	release := closerFunc(func() error {
		_ = sess.Close()
		return client.Close()
	})
	return newCLISession(device, newConsole(stdout, stdin, release, "\n"), d.opts), nil
}
