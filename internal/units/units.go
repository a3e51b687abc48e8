// Package units is a small physical-unit system in the style of udunits.
//
// A System is loaded from a unit table (see units.dat for the format) and
// scans unit specifications such as "days since 1979-01-01" or "km/h" into a
// Unit: a scale factor and origin relative to the base units, plus the powers
// of each base quantity.
//
// Time units map onto a mixed Julian/Gregorian calendar whose internal epoch
// is 2001-01-01 00:00:00 UTC. A Unit's Origin is always expressed in base
// units, so for time units it is the number of seconds since that epoch.
package units

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

//go:embed units.dat
var defaultTable []byte

// Base quantities, in the order they appear in Unit.Power.
const (
	Length = iota
	Mass
	Time
	Current
	Temperature
	Amount
	Luminosity
	Angle

	NumBase
)

var baseNames = [NumBase]string{"length", "mass", "time", "current", "temperature", "amount", "luminosity", "angle"}

// Unit is a scanned unit specification. A value v expressed in the unit
// corresponds to v*Factor + Origin in base units.
type Unit struct {
	Origin    float64
	Factor    float64
	HasOrigin bool
	Power     [NumBase]int
}

func dimensionless(factor float64) Unit {
	return Unit{Factor: factor}
}

// IsTime reports whether u measures time and nothing else.
func IsTime(u Unit) bool {
	for i, p := range u.Power {
		if i == Time {
			if p != 1 {
				return false
			}
		} else if p != 0 {
			return false
		}
	}
	return true
}

// HasOrigin reports whether u was given an origin ("@", "since", ...).
func HasOrigin(u Unit) bool {
	return u.HasOrigin
}

func sameDimension(a, b Unit) bool {
	return a.Power == b.Power
}

func (u Unit) isNumber() bool {
	return !u.HasOrigin && u.Power == [NumBase]int{}
}

func multiply(a, b Unit) Unit {
	out := Unit{Factor: a.Factor * b.Factor}
	for i := range out.Power {
		out.Power[i] = a.Power[i] + b.Power[i]
	}
	// Scaling by a plain number keeps the other operand's origin.
	switch {
	case b.isNumber() && a.HasOrigin:
		out.Origin, out.HasOrigin = a.Origin, true
	case a.isNumber() && b.HasOrigin:
		out.Origin, out.HasOrigin = b.Origin, true
	}
	return out
}

func divide(a, b Unit) Unit {
	return multiply(a, raise(b, -1))
}

func raise(u Unit, n int) Unit {
	if n == 1 {
		return u
	}
	out := Unit{Factor: math.Pow(u.Factor, float64(n))}
	for i := range out.Power {
		out.Power[i] = u.Power[i] * n
	}
	return out
}

// shift moves the zero point of u to x (expressed in u).
func shift(u Unit, x float64) Unit {
	u.Origin += x * u.Factor
	u.HasOrigin = true
	return u
}

// String renders u in base units, e.g. "86400 s @ 1.5e+09".
func (u Unit) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(u.Factor, 'g', -1, 64))
	for i, p := range u.Power {
		if p == 0 {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(baseSymbols[i])
		if p != 1 {
			b.WriteString(strconv.Itoa(p))
		}
	}
	if u.HasOrigin {
		b.WriteString(" @ ")
		b.WriteString(strconv.FormatFloat(u.Origin, 'g', -1, 64))
	}
	return b.String()
}

var baseSymbols = [NumBase]string{"m", "kg", "s", "A", "K", "mol", "cd", "rad"}

// Dimensions maps the symbol of each base unit in u to its nonzero power.
func (u Unit) Dimensions() map[string]int {
	dims := make(map[string]int)
	for i, p := range u.Power {
		if p != 0 {
			dims[baseSymbols[i]] = p
		}
	}
	return dims
}

// System holds a loaded unit table. The zero value is not initialized; use
// New followed by Init or Load. A System is safe for concurrent use.
type System struct {
	mu    sync.RWMutex
	table *table
}

// New returns an uninitialized System.
func New() *System {
	return &System{}
}

// Init loads the unit table at path, or the built-in table when path is empty.
func (s *System) Init(path string) error {
	if path == "" {
		return s.Load(bytes.NewReader(defaultTable))
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newError(ErrNoFile, path)
		}
		return &Error{Kind: ErrIO, Msg: fmt.Sprintf("%s: %v", path, err)}
	}
	defer f.Close()
	return s.Load(f)
}

// Load reads a unit table from r and replaces the current one.
func (s *System) Load(r io.Reader) error {
	t, err := parseTable(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
	return nil
}

// Initialized reports whether a table has been loaded.
func (s *System) Initialized() bool {
	_, err := s.current()
	return err == nil
}

func (s *System) current() (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil, ErrNotInitialized
	}
	return s.table, nil
}

// Scan parses a unit specification.
func (s *System) Scan(spec string) (Unit, error) {
	t, err := s.current()
	if err != nil {
		return Unit{}, err
	}
	return t.scan(spec)
}

// Convert returns the linear transform taking values in from to values in to:
// to = slope*from + intercept.
func (s *System) Convert(from, to Unit) (slope, intercept float64, err error) {
	if _, err := s.current(); err != nil {
		return 0, 0, err
	}
	if from.Factor == 0 || to.Factor == 0 {
		return 0, 0, newError(ErrInvalid, "zero scale factor")
	}
	if !sameDimension(from, to) {
		return 0, 0, newError(ErrConvert, fmt.Sprintf("%s -> %s", from, to))
	}
	slope = from.Factor / to.Factor
	intercept = (from.Origin - to.Origin) / to.Factor
	return slope, intercept, nil
}
