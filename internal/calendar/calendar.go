// Package calendar converts time values such as "N days since 1850-01-01"
// into calendar dates under the calendars of the CF metadata conventions.
//
// The standard (mixed Julian/Gregorian) calendar is delegated to the unit
// system. The 365-day ("noleap") and 360-day calendars, which climate models
// use and general date libraries cannot express, are computed here: the
// reference date of the unit is recovered through the unit system, then the
// offset is laid out over a fixed-length year.
//
// The reference date is recovered with a zero-origin unit: every origin the
// unit system produces is measured in seconds from the same internal epoch,
// so converting a unit's origin with a zero-origin seconds unit yields the
// date the user wrote after "since", without parsing unit strings here.
package calendar

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ryan-winkler/cfcalendar/internal/units"
)

// DateTime is a calendar date and time of day.
type DateTime = units.DateTime

// referenceUnits seeds the zero-origin unit. The date is irrelevant: the
// origin is overwritten with zero.
const referenceUnits = "seconds since 1234-05-06 00:00"

var (
	// ErrUninitialized is fatal: the zero-origin reference unit could not be
	// built, so no calendar can be computed.
	ErrUninitialized = errors.New("calendar subsystem not initialized")

	// ErrValueRange reports a time value that is not finite or whose day
	// count exceeds what a float64 holds exactly.
	ErrValueRange = errors.New("time value out of range")
)

// UnitSystem is the unit library the converter builds on.
type UnitSystem interface {
	Scan(spec string) (units.Unit, error)
	Calendar(value float64, u units.Unit) (units.DateTime, error)
	InvCalendar(dt units.DateTime, u units.Unit) (float64, error)
}

// Converter converts between time values and calendar dates. Create one per
// process and share it: it is safe for concurrent use, and its one-time
// diagnostics are tracked per Converter.
type Converter struct {
	sys    UnitSystem
	logger *slog.Logger

	epochOnce  sync.Once
	originZero units.Unit
	epochErr   error

	warned [numKinds]atomic.Bool
}

// New returns a Converter over sys. A nil logger means slog.Default().
func New(sys UnitSystem, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{sys: sys, logger: logger}
}

// Init builds the reference unit now instead of on first use.
func (c *Converter) Init() error {
	_, err := c.referenceEpoch()
	return err
}

func (c *Converter) referenceEpoch() (units.Unit, error) {
	c.epochOnce.Do(func() {
		u, err := c.sys.Scan(referenceUnits)
		if err != nil {
			c.epochErr = fmt.Errorf("%w: decode internal reference date: %w", ErrUninitialized, err)
			c.logger.Error("could not decode internal date string for reference date", "units", referenceUnits, "error", err)
			return
		}
		u.Origin = 0
		c.originZero = u
	})
	return c.originZero, c.epochErr
}

// ReferenceDate returns the date u's origin denotes, and value expressed in
// seconds: the offset still to be added to that date.
func (c *Converter) ReferenceDate(value float64, u units.Unit) (DateTime, float64, error) {
	zero, err := c.referenceEpoch()
	if err != nil {
		return DateTime{}, 0, err
	}
	if !units.IsTime(u) {
		return DateTime{}, 0, &units.Error{Kind: units.ErrNotTime, Msg: u.String()}
	}
	ref, err := c.sys.Calendar(u.Origin, zero)
	if err != nil {
		return DateTime{}, 0, err
	}
	return ref, value * u.Factor, nil
}

// Convert converts value, in the time unit u, to a date in the named
// calendar. Unimplemented and unrecognized names fall back to the standard
// calendar and are reported once through the logger; they are never errors.
func (c *Converter) Convert(value float64, u units.Unit, calendar string) (DateTime, error) {
	if _, err := c.referenceEpoch(); err != nil {
		return DateTime{}, err
	}
	switch kind := Resolve(calendar); kind {
	case KindNoLeap:
		return c.ConvertWith(value, u, NoLeap)
	case KindDay360:
		return c.ConvertWith(value, u, Day360)
	case KindProlepticGregorian, KindJulian:
		c.warnOnce(kind, "calendar not implemented yet, using standard calendar", calendar)
	case KindUnknown:
		c.warnOnce(kind, "unknown calendar, using standard calendar instead", calendar)
	}
	return c.sys.Calendar(value, u)
}

// ConvertWith converts value, in the time unit u, to a date in the fixed
// calendar m.
func (c *Converter) ConvertWith(value float64, u units.Unit, m Model) (DateTime, error) {
	ref, secs, err := c.ReferenceDate(value, u)
	if err != nil {
		return DateTime{}, err
	}
	if !inRange(secs) {
		return DateTime{}, fmt.Errorf("%w: %g seconds from %s", ErrValueRange, secs, ref)
	}
	return m.add(ref, secs), nil
}

// Invert converts a standard-calendar date to a value in the time unit u.
func (c *Converter) Invert(dt DateTime, u units.Unit) (float64, error) {
	return c.sys.InvCalendar(dt, u)
}

func (c *Converter) warnOnce(kind Kind, msg, calendar string) {
	if c.warned[kind].CompareAndSwap(false, true) {
		c.logger.Warn(msg, "calendar", calendar, "fallback", KindStandard.String())
	}
}
