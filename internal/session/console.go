package session

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"
)

var (
	genericPrompt  = regexp.MustCompile(`(?:^|[\r\n])([A-Za-z0-9][\w.\-/]*)(\([\w.\-]+\))?([>#])\s*$`)
	usernamePrompt = regexp.MustCompile(`(?i)(user ?name|login):\s*$`)
	passwordPrompt = regexp.MustCompile(`(?i)password:\s*$`)
	cliErrorMarker = regexp.MustCompile(`(?m)^\s*%\s*(Invalid input|Incomplete command|Ambiguous command|Unknown command|Invalid command)[^\r\n]*`)
)

// console is a prompt-driven view over a byte stream. A background reader
// drains the transport so the remote side never blocks on output.
type console struct {
	w       io.Writer
	closer  io.Closer
	newline string

	data    chan []byte
	quit    chan struct{}
	readErr error
	pending []byte

	closeOnce sync.Once
	closeErr  error
}

func newConsole(r io.Reader, w io.Writer, closer io.Closer, newline string) *console {
	c := &console{
		w:       w,
		closer:  closer,
		newline: newline,
		data:    make(chan []byte, 64),
		quit:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

func (c *console) readLoop(r io.Reader) {
	defer close(c.data)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.data <- chunk:
			case <-c.quit:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *console) send(line string) error {
	if _, err := io.WriteString(c.w, line+c.newline); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

// expect reads until one of patterns matches the tail of the buffered
// output and returns everything up to the end of the match together with
// the index of the pattern that matched.
func (c *console) expect(ctx context.Context, timeout time.Duration, patterns ...*regexp.Regexp) (string, int, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		for i, p := range patterns {
			if loc := p.FindIndex(c.pending); loc != nil {
				out := string(c.pending[:loc[1]])
				c.pending = c.pending[loc[1]:]
				return out, i, nil
			}
		}
		select {
		case chunk, ok := <-c.data:
			if !ok {
				err := c.readErr
				if err == nil || err == io.EOF {
					err = errSessionClosed
				}
				return c.drain(), -1, fmt.Errorf("connection closed: %w", err)
			}
			c.pending = append(c.pending, chunk...)
		case <-timer.C:
			return c.drain(), -1, ErrTimeout
		case <-ctx.Done():
			return c.drain(), -1, ctx.Err()
		}
	}
}

func (c *console) drain() string {
	out := string(c.pending)
	c.pending = nil
	return out
}

func (c *console) close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		if c.closer != nil {
			c.closeErr = c.closer.Close()
		}
	})
	return c.closeErr
}

// normalize converts device line endings to "\n".
func normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	return strings.ReplaceAll(raw, "\r", "")
}

// cleanOutput drops the echoed command and the trailing prompt line.
func cleanOutput(raw, cmd string) string {
	lines := strings.Split(normalize(raw), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(cmd) {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// cliError returns the first CLI error marker in out, if any.
func cliError(out string) string {
	return strings.TrimSpace(cliErrorMarker.FindString(out))
}

// basePrompt builds the prompt pattern for a known hostname. IOS truncates
// long hostnames inside configuration modes, so only a prefix is pinned.
func basePrompt(hostname string) *regexp.Regexp {
	prefix := hostname
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return regexp.MustCompile(`(?:^|[\r\n])(` + regexp.QuoteMeta(prefix) + `[\w.\-/]*)(\([\w.\-]+\))?([>#])\s*$`)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
