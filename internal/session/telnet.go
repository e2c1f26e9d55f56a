package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/madupadilshan/Network-Automation/internal/inventory"
)

// Telnet protocol bytes (RFC 854).
const (
	tnIAC  byte = 255
	tnDONT byte = 254
	tnDO   byte = 253
	tnWONT byte = 252
	tnWILL byte = 251
	tnSB   byte = 250
	tnSE   byte = 240

	tnOptEcho byte = 1
	tnOptSGA  byte = 3
)

// openTelnet dials a console or VTY port. Login prompts, if any, are
// answered later by the CLI session.
func (d *CLIDialer) openTelnet(ctx context.Context, device inventory.Device, address string) (*cliSession, error) {
	dialer := &net.Dialer{Timeout: d.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tr := newTelnetReader(conn, conn)
	con := newConsole(tr, conn, conn, "\r\n")
	return newCLISession(device, con, d.opts), nil
}

type telnetState int

const (
	tsData telnetState = iota
	tsIAC
	tsOption
	tsSub
	tsSubIAC
)

// telnetReader strips option negotiation from the stream and refuses
// everything except remote echo and suppress-go-ahead.
type telnetReader struct {
	r     *bufio.Reader
	reply io.Writer
	mu    sync.Mutex

	state telnetState
	verb  byte
}

func newTelnetReader(r io.Reader, reply io.Writer) *telnetReader {
	return &telnetReader{r: bufio.NewReader(r), reply: reply}
}

func (t *telnetReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for n == 0 {
		b, err := t.r.ReadByte()
		if err != nil {
			return n, err
		}
		if out, ok := t.step(b); ok {
			p[n] = out
			n++
		}
		// Hand back what is already buffered without blocking again.
		for n < len(p) && t.r.Buffered() > 0 {
			b, err := t.r.ReadByte()
			if err != nil {
				return n, err
			}
			if out, ok := t.step(b); ok {
				p[n] = out
				n++
			}
		}
	}
	return n, nil
}

// step advances the state machine and reports a data byte when one is
// produced.
func (t *telnetReader) step(b byte) (byte, bool) {
	switch t.state {
	case tsData:
		if b == tnIAC {
			t.state = tsIAC
			return 0, false
		}
		return b, true
	case tsIAC:
		switch b {
		case tnIAC:
			t.state = tsData
			return tnIAC, true
		case tnDO, tnDONT, tnWILL, tnWONT:
			t.verb = b
			t.state = tsOption
		case tnSB:
			t.state = tsSub
		default:
			t.state = tsData
		}
		return 0, false
	case tsOption:
		t.negotiate(t.verb, b)
		t.state = tsData
		return 0, false
	case tsSub:
		if b == tnIAC {
			t.state = tsSubIAC
		}
		return 0, false
	case tsSubIAC:
		if b == tnSE {
			t.state = tsData
		} else {
			t.state = tsSub
		}
		return 0, false
	}
	return 0, false
}

func (t *telnetReader) negotiate(verb, opt byte) {
	var answer byte
	switch verb {
	case tnDO:
		answer = tnWONT
	case tnWILL:
		if opt == tnOptEcho || opt == tnOptSGA {
			answer = tnDO
		} else {
			answer = tnDONT
		}
	default:
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.reply.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		defer func() { _ = c.SetWriteDeadline(time.Time{}) }()
	}
	_, _ = t.reply.Write([]byte{tnIAC, answer, opt})
}
