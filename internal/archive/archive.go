// Package archive keeps converted batch results in a local directory, one
// CSV file per batch, and lists them back for the results endpoint.
package archive

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ryan-winkler/cfcalendar/internal/batch"
	"github.com/ryan-winkler/cfcalendar/internal/units"
)

// Suffix ends every result file name.
const Suffix = ".out.csv"

// Archive saves results to a directory.
type Archive struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New returns an Archive writing to dir, or nil if dir is empty (disabled).
func New(dir string, logger *slog.Logger) *Archive {
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{dir: expandHome(dir), logger: logger, now: time.Now}
}

// Dir returns the directory results are written to.
func (a *Archive) Dir() string {
	if a == nil {
		return ""
	}
	return a.dir
}

// Save writes the result of job as <name>.out.csv and returns its path.
// name is the batch's base name; its extension is dropped.
func (a *Archive) Save(name string, job *batch.Job, dates []units.DateTime) (string, error) {
	if a == nil || job == nil {
		return "", nil
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			return '-'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "batch"
	}
	path := filepath.Join(a.dir, base+Suffix)

	var buf bytes.Buffer
	stamp := [2]string{"converted", a.now().UTC().Format(time.RFC3339)}
	if err := batch.WriteResult(&buf, job, dates, stamp); err != nil {
		return "", err
	}
	// Write then rename, so scans never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write result: %w", err)
	}

	a.logger.Info("result saved", "file", path, "rows", len(dates))
	return path, nil
}

func expandHome(dir string) string {
	if strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[2:])
		}
	}
	return dir
}
