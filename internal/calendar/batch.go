package calendar

import (
	"errors"
	"fmt"

	"github.com/ryan-winkler/cfcalendar/internal/units"
)

// ErrEmptyBatch is returned for a batch with nothing to convert.
var ErrEmptyBatch = errors.New("no values to convert")

// BatchError locates the element that stopped a batch conversion.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("element %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Columns holds converted dates field by field.
type Columns struct {
	Year   []int64   `json:"year"`
	Month  []int     `json:"month"`
	Day    []int     `json:"day"`
	Hour   []int     `json:"hour"`
	Minute []int     `json:"minute"`
	Second []float64 `json:"second"`
}

// ConvertAll converts every value with Convert, stopping at the first error.
func (c *Converter) ConvertAll(values []float64, u units.Unit, calendar string) ([]DateTime, error) {
	if len(values) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]DateTime, len(values))
	for i, v := range values {
		dt, err := c.Convert(v, u, calendar)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		out[i] = dt
	}
	return out, nil
}

// ConvertColumns is ConvertAll with the result laid out as columns.
func (c *Converter) ConvertColumns(values []float64, u units.Unit, calendar string) (Columns, error) {
	dates, err := c.ConvertAll(values, u, calendar)
	if err != nil {
		return Columns{}, err
	}
	return ToColumns(dates), nil
}

// ToColumns pivots dates into columns.
func ToColumns(dates []DateTime) Columns {
	n := len(dates)
	cols := Columns{
		Year:   make([]int64, n),
		Month:  make([]int, n),
		Day:    make([]int, n),
		Hour:   make([]int, n),
		Minute: make([]int, n),
		Second: make([]float64, n),
	}
	for i, d := range dates {
		cols.Year[i] = d.Year
		cols.Month[i] = d.Month
		cols.Day[i] = d.Day
		cols.Hour[i] = d.Hour
		cols.Minute[i] = d.Minute
		cols.Second[i] = d.Second
	}
	return cols
}

// InvertAll converts standard-calendar dates to values in u.
func (c *Converter) InvertAll(dates []DateTime, u units.Unit) ([]float64, error) {
	if len(dates) == 0 {
		return nil, ErrEmptyBatch
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		v, err := c.Invert(d, u)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		out[i] = v
	}
	return out, nil
}
