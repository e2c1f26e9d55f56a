package session

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// fakeDevice emulates enough of an IOS CLI to drive a session: optional
// interactive login, enable, configuration sub-modes and canned output.
type fakeDevice struct {
	Hostname   string
	Username   string
	Password   string
	Secret     string
	AskLogin   bool
	Privileged bool
	Negotiate  bool
	Outputs    map[string]string
	FailOn     map[string]bool
	Hang       map[string]bool

	mu         sync.Mutex
	received   []string
	negotiated [][]byte
}

func (f *fakeDevice) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeDevice) replies() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.negotiated...)
}

func (f *fakeDevice) prompt(mode string) string {
	return f.Hostname + mode
}

func (f *fakeDevice) serve(conn io.ReadWriteCloser) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(s string) bool {
		_, err := io.WriteString(conn, s)
		return err == nil
	}
	readLine := func() (string, bool) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimRight(line, "\r\n"), true
	}

	if f.Negotiate {
		for _, seq := range [][]byte{{tnIAC, tnDO, tnOptEcho}, {tnIAC, tnWILL, tnOptSGA}} {
			if _, err := conn.Write(seq); err != nil {
				return
			}
			reply := make([]byte, 3)
			if _, err := io.ReadFull(r, reply); err != nil {
				return
			}
			f.mu.Lock()
			f.negotiated = append(f.negotiated, reply)
			f.mu.Unlock()
		}
		// A terminal-type subnegotiation must never surface as data.
		if _, err := conn.Write([]byte{tnIAC, tnSB, 24, 1, tnIAC, tnSE}); err != nil {
			return
		}
	}

	mode := ">"
	if f.Privileged {
		mode = "#"
	}

	if f.AskLogin {
		authed := false
		for attempt := 0; attempt < 3 && !authed; attempt++ {
			if !write("\r\nUser Access Verification\r\n\r\nUsername: ") {
				return
			}
			user, ok := readLine()
			if !ok || !write(user+"\r\nPassword: ") {
				return
			}
			pass, ok := readLine()
			if !ok {
				return
			}
			if user == f.Username && pass == f.Password {
				authed = true
			} else if !write("\r\n% Login invalid\r\n") {
				return
			}
		}
		if !authed {
			return
		}
	}
	if !write("\r\n" + f.prompt(mode)) {
		return
	}

	hung := false
	for {
		line, ok := readLine()
		if !ok {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, line)
		f.mu.Unlock()
		if hung || f.Hang[line] {
			hung = true
			continue
		}

		out := ""
		switch {
		case line == "enable" && mode == ">":
			if !write(line + "\r\nPassword: ") {
				return
			}
			secret, ok := readLine()
			if !ok {
				return
			}
			msg := "\r\n"
			if secret == f.Secret {
				mode = "#"
			} else {
				msg += "% Access denied\r\n\r\n"
			}
			if !write(msg + f.prompt(mode)) {
				return
			}
			continue
		case f.FailOn[line]:
			out = "                   ^\r\n% Invalid input detected at '^' marker."
		case line == "configure terminal":
			out = "Enter configuration commands, one per line.  End with CNTL/Z."
			mode = "(config)#"
		case line == "end":
			mode = "#"
		case strings.HasPrefix(line, "interface "):
			mode = "(config-if)#"
			if strings.Contains(line, ".") {
				mode = "(config-subif)#"
			}
		case strings.HasPrefix(line, "router "):
			mode = "(config-router)#"
		default:
			out = f.Outputs[line]
		}

		resp := line + "\r\n"
		if out != "" {
			resp += out + "\r\n"
		}
		if !write(resp + f.prompt(mode)) {
			return
		}
	}
}
