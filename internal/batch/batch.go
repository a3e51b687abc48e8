// Package batch reads and writes batch files: a few "# key: value" header
// lines naming the time units and calendar, then one value per line.
//
//	# units: days since 1850-01-01
//	# calendar: noleap
//	0
//	31.5
//	365
//
// Results are written back as CSV with the same header.
package batch

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ryan-winkler/cfcalendar/internal/units"
)

var (
	ErrNoUnits  = errors.New("missing \"# units:\" header")
	ErrNoValues = errors.New("no values")
)

// Job is a parsed batch file.
type Job struct {
	Units    string
	Calendar string
	Values   []float64
}

// LineError reports the line of a batch file that could not be read.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Header splits a "# key: value" line. Keys are lower-cased.
func Header(line string) (key, value string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), "#")
	if !found {
		return "", "", false
	}
	key, value, found = strings.Cut(rest, ":")
	if !found {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

// Parse reads a batch file. Blank lines and unrecognized comments are
// skipped. A missing calendar header leaves Calendar empty.
func Parse(r io.Reader) (*Job, error) {
	job := &Job{}
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			key, val, ok := Header(line)
			if !ok {
				continue
			}
			switch key {
			case "units":
				job.Units = val
			case "calendar":
				job.Calendar = val
			}
			continue
		}
		// A value may be followed by other columns, as in our own output.
		field, _, _ := strings.Cut(line, ",")
		if field == Columns[0] {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, &LineError{Line: n, Err: fmt.Errorf("bad value %q", field)}
		}
		job.Values = append(job.Values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	if job.Units == "" {
		return nil, ErrNoUnits
	}
	if len(job.Values) == 0 {
		return nil, ErrNoValues
	}
	return job, nil
}

// Columns is the CSV header row of a result.
var Columns = []string{"value", "year", "month", "day", "hour", "minute", "second"}

// WriteResult writes job's header, then one CSV row per value with the date
// it converted to. extra header lines ("key", "value") go before the units.
func WriteResult(w io.Writer, job *Job, dates []units.DateTime, extra ...[2]string) error {
	if len(dates) != len(job.Values) {
		return fmt.Errorf("%d dates for %d values", len(dates), len(job.Values))
	}
	bw := bufio.NewWriter(w)
	for _, h := range extra {
		fmt.Fprintf(bw, "# %s: %s\n", h[0], h[1])
	}
	fmt.Fprintf(bw, "# units: %s\n", job.Units)
	if job.Calendar != "" {
		fmt.Fprintf(bw, "# calendar: %s\n", job.Calendar)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	row := make([]string, len(Columns))
	for i, d := range dates {
		row[0] = formatFloat(job.Values[i])
		row[1] = strconv.FormatInt(d.Year, 10)
		row[2] = strconv.Itoa(d.Month)
		row[3] = strconv.Itoa(d.Day)
		row[4] = strconv.Itoa(d.Hour)
		row[5] = strconv.Itoa(d.Minute)
		row[6] = formatFloat(d.Second)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return bw.Flush()
}

// Scanner parses unit specifications.
type Scanner interface {
	Scan(spec string) (units.Unit, error)
}

// Converter converts values in bulk.
type Converter interface {
	ConvertAll(values []float64, u units.Unit, calendar string) ([]units.DateTime, error)
}

// Run converts job. calendar is used when the job names none; it is
// recorded in job so results carry it.
func Run(job *Job, sc Scanner, conv Converter, calendar string) ([]units.DateTime, error) {
	u, err := sc.Scan(job.Units)
	if err != nil {
		return nil, fmt.Errorf("units %q: %w", job.Units, err)
	}
	if job.Calendar == "" {
		job.Calendar = calendar
	}
	return conv.ConvertAll(job.Values, u, job.Calendar)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
