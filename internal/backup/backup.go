// Package backup writes configuration snapshots to disk and maintains the
// human readable index of the latest snapshot per device.
package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TimestampLayout is the suffix layout of timestamped snapshot files.
	TimestampLayout = "20060102_150405"
	// HeaderDateLayout is the layout of the "Backup Date" header line.
	HeaderDateLayout = "2006-01-02 15:04:05"
	// IndexFile is the index written next to the snapshots.
	IndexFile = "README.md"

	latestSuffix = "_latest.txt"
	separator    = "! ----------------------------------------------------------------------"
)

// Record is one captured running configuration.
type Record struct {
	Device    string
	Address   string
	Timestamp time.Time
	Config    string
	Version   string
}

// Artifacts names the files written for one record.
type Artifacts struct {
	Timestamped string
	Latest      string
}

// CaptureError reports a snapshot that could not be persisted.
type CaptureError struct {
	Device string
	Path   string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("backup %s to %s: %v", e.Device, e.Path, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Manager owns a backup directory.
type Manager struct {
	Dir   string
	Clock func() time.Time
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir, Clock: time.Now}
}

func (m *Manager) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}

// maxCollisions bounds the suffixes tried for captures sharing a second.
const maxCollisions = 99

// TimestampedName is the immutable snapshot file name for a device.
func TimestampedName(device string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.txt", device, ts.Format(TimestampLayout))
}

// LatestName is the always-current snapshot file name for a device.
func LatestName(device string) string {
	return device + latestSuffix
}

// Capture writes the timestamped snapshot, which is never overwritten, and
// then replaces the latest snapshot. A zero Timestamp uses the manager clock.
func (m *Manager) Capture(rec Record) (Artifacts, error) {
	if rec.Device == "" {
		return Artifacts{}, &CaptureError{Device: rec.Device, Path: m.Dir, Err: errors.New("device name is required")}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return Artifacts{}, &CaptureError{Device: rec.Device, Path: m.Dir, Err: err}
	}

	body := Render(rec)
	art := Artifacts{Latest: filepath.Join(m.Dir, LatestName(rec.Device))}

	name := TimestampedName(rec.Device, rec.Timestamp)
	for n := 1; ; n++ {
		art.Timestamped = filepath.Join(m.Dir, name)
		err := writeExclusive(art.Timestamped, body)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || n > maxCollisions {
			return Artifacts{}, &CaptureError{Device: rec.Device, Path: art.Timestamped, Err: err}
		}
		// Same device captured twice within one second.
		name = fmt.Sprintf("%s_%s_%d.txt", rec.Device, rec.Timestamp.Format(TimestampLayout), n)
	}
	if err := replaceFile(art.Latest, body); err != nil {
		return Artifacts{}, &CaptureError{Device: rec.Device, Path: art.Latest, Err: err}
	}
	return art, nil
}

// Render produces the snapshot file body: the fixed header then the
// configuration text verbatim.
func Render(rec Record) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "! Backup Date: %s\n", rec.Timestamp.Format(HeaderDateLayout))
	fmt.Fprintf(&b, "! Router: %s\n", rec.Device)
	fmt.Fprintf(&b, "! IP Address: %s\n", rec.Address)
	fmt.Fprintf(&b, "! %s\n", rec.Version)
	b.WriteString("!\n")
	b.WriteString(separator + "\n")
	b.WriteString("!\n")
	b.WriteString(rec.Config)
	return []byte(b.String())
}

// StripHeader returns the configuration text of a snapshot body.
func StripHeader(body []byte) string {
	s := string(body)
	idx := strings.Index(s, separator+"\n!\n")
	if idx < 0 {
		return s
	}
	return s[idx+len(separator)+3:]
}

// VersionLine returns the first line of output that mentions the software
// version, or "" when there is none.
func VersionLine(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "Version") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func writeExclusive(path string, body []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func replaceFile(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
