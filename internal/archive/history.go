package archive

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ryan-winkler/cfcalendar/internal/batch"
)

// Entry describes one saved result.
type Entry struct {
	File string `json:"file"`

	// Converted is the RFC3339 time of conversion, or the file's mod time.
	Converted string `json:"converted"`

	Units    string `json:"units"`
	Calendar string `json:"calendar,omitempty"`

	// Rows counts converted values.
	Rows int `json:"rows"`
}

// Scan lists the results in dir, newest first, at most maxEntries of them
// (all when maxEntries <= 0). An empty or missing dir yields nothing.
func Scan(dir string, maxEntries int) ([]Entry, error) {
	if dir == "" {
		return nil, nil
	}
	dir = expandHome(dir)

	matches, err := filepath.Glob(filepath.Join(dir, "*"+Suffix))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		entry, err := parseResult(path)
		if err != nil {
			continue // not one of ours
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Converted != entries[j].Converted {
			return entries[i].Converted > entries[j].Converted
		}
		return entries[i].File < entries[j].File
	})

	if maxEntries > 0 && len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries, nil
}

// parseResult reads the header of a result file and counts its rows.
func parseResult(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	entry := Entry{File: path}
	sc := bufio.NewScanner(f)
	sawColumns := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if key, val, ok := batch.Header(line); ok {
			switch key {
			case "converted":
				entry.Converted = val
			case "units":
				entry.Units = val
			case "calendar":
				entry.Calendar = val
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if !sawColumns {
			if line != strings.Join(batch.Columns, ",") {
				return Entry{}, fmt.Errorf("%s: no column header", path)
			}
			sawColumns = true
			continue
		}
		entry.Rows++
	}
	if err := sc.Err(); err != nil {
		return Entry{}, err
	}
	if entry.Units == "" {
		return Entry{}, fmt.Errorf("%s: no units", path)
	}

	if t, err := time.Parse(time.RFC3339, entry.Converted); err == nil {
		entry.Converted = t.UTC().Format(time.RFC3339)
	} else if info, err := os.Stat(path); err == nil {
		entry.Converted = info.ModTime().UTC().Format(time.RFC3339)
	}
	return entry, nil
}
