package backup

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// IndexEntry is one successfully backed up device of a run.
type IndexEntry struct {
	Device string
	File   string
}

// BuildIndex renders the index document from the devices that succeeded in
// one run, in run order. Earlier snapshots in the directory are not read.
func BuildIndex(latest []IndexEntry, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("# Router Configuration Backups\n\n")
	fmt.Fprintf(&b, "Last updated: %s\n\n", now.Format(HeaderDateLayout))
	b.WriteString("## Latest Backups\n\n")
	for _, e := range latest {
		fmt.Fprintf(&b, "- **%s**: [%s](%s)\n", e.Device, e.File, e.File)
	}

	b.WriteString("\n## All Backups\n\n")
	b.WriteString("Check the `backups/` directory for historical backups.\n")

	b.WriteString("\n## Backup Naming Convention\n\n")
	b.WriteString("- Format: `{RouterName}_{YYYYMMDD_HHMMSS}.txt`\n")
	b.WriteString("- Latest: `{RouterName}_latest.txt`\n")
	return []byte(b.String())
}

// WriteIndex replaces the index in the manager directory. It does nothing
// when no backup succeeded.
func (m *Manager) WriteIndex(latest []IndexEntry) (string, error) {
	if len(latest) == 0 {
		return "", nil
	}
	path := filepath.Join(m.Dir, IndexFile)
	if err := replaceFile(path, BuildIndex(latest, m.now())); err != nil {
		return "", fmt.Errorf("write index: %w", err)
	}
	return path, nil
}
