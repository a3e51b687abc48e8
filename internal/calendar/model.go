package calendar

import (
	"errors"
	"fmt"
)

// ErrModel reports a malformed calendar model.
var ErrModel = errors.New("invalid calendar model")

// Model is a calendar in which every year has the same length: a fixed
// number of days split into twelve months of fixed length. Models are
// immutable; build one with NewModel.
type Model struct {
	name         string
	daysPerYear  int
	daysPerMonth [12]int
}

// The two fixed calendars of the CF conventions.
var (
	NoLeap = mustModel("noleap", 365, []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31})
	Day360 = mustModel("360_day", 360, []int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30})
)

// NewModel validates and builds a model. daysPerMonth must hold twelve
// positive lengths summing to daysPerYear.
func NewModel(name string, daysPerYear int, daysPerMonth []int) (Model, error) {
	if len(daysPerMonth) != 12 {
		return Model{}, fmt.Errorf("%w: %d months, want 12", ErrModel, len(daysPerMonth))
	}
	m := Model{name: name, daysPerYear: daysPerYear}
	sum := 0
	for i, n := range daysPerMonth {
		if n <= 0 {
			return Model{}, fmt.Errorf("%w: month %d has %d days", ErrModel, i+1, n)
		}
		m.daysPerMonth[i] = n
		sum += n
	}
	if sum != daysPerYear {
		return Model{}, fmt.Errorf("%w: months sum to %d days, year has %d", ErrModel, sum, daysPerYear)
	}
	return m, nil
}

func mustModel(name string, daysPerYear int, daysPerMonth []int) Model {
	m, err := NewModel(name, daysPerYear, daysPerMonth)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Model) Name() string     { return m.name }
func (m Model) DaysPerYear() int { return m.daysPerYear }

// DaysInMonth returns the length of month (1-12).
func (m Model) DaysInMonth(month int) int {
	return m.daysPerMonth[month-1]
}

// daysBefore counts the days of the year preceding month (1-12).
func (m Model) daysBefore(month int) int {
	n := 0
	for i := 0; i < month-1; i++ {
		n += m.daysPerMonth[i]
	}
	return n
}

// DayOfYear returns the zero-based day of the year for month and day.
func (m Model) DayOfYear(month, day int) int {
	return m.daysBefore(month) + day - 1
}
