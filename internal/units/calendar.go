package units

import (
	"fmt"
	"math"
)

const (
	secondsPerDay = 86400

	// epochJDN is the Julian Day Number of the internal epoch, 2001-01-01.
	epochJDN = 2451911

	// gregorianJDN is 1582-10-15, the first day of the Gregorian calendar.
	// Earlier dates are Julian.
	gregorianJDN = 2299161

	// maxDays bounds day counts to the range where float64 holds every integer.
	maxDays = 1 << 53
)

// DateTime is a civil date and time of day. Years use astronomical
// numbering, so year 0 is 1 BC.
type DateTime struct {
	Year   int64   `json:"year"`
	Month  int     `json:"month"`
	Day    int     `json:"day"`
	Hour   int     `json:"hour"`
	Minute int     `json:"minute"`
	Second float64 `json:"second"`
}

func (d DateTime) String() string {
	sign, y := "", d.Year
	if y < 0 {
		sign, y = "-", -y
	}
	return fmt.Sprintf("%s%04d-%02d-%02d %02d:%02d:%06.3f", sign, y, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Calendar converts a value in the time unit u to a date in the mixed
// Julian/Gregorian calendar.
func (s *System) Calendar(value float64, u Unit) (DateTime, error) {
	if _, err := s.current(); err != nil {
		return DateTime{}, err
	}
	if !IsTime(u) {
		return DateTime{}, newError(ErrNotTime, u.String())
	}
	return fromEpochSeconds(value*u.Factor + u.Origin)
}

// InvCalendar converts a date in the mixed Julian/Gregorian calendar to a
// value in the time unit u.
func (s *System) InvCalendar(dt DateTime, u Unit) (float64, error) {
	if _, err := s.current(); err != nil {
		return 0, err
	}
	if !IsTime(u) {
		return 0, newError(ErrNotTime, u.String())
	}
	if u.Factor == 0 {
		return 0, newError(ErrInvalid, "zero scale factor")
	}
	if dt.Month < 1 || dt.Month > 12 || dt.Day < 1 || dt.Day > 31 {
		return 0, newError(ErrInvalid, fmt.Sprintf("no such date %s", dt))
	}
	if dt.Year > maxTimestampYear || dt.Year < -maxTimestampYear {
		return 0, newError(ErrInvalid, fmt.Sprintf("year %d out of range", dt.Year))
	}
	return (epochSeconds(dt) - u.Origin) / u.Factor, nil
}

func fromEpochSeconds(secs float64) (DateTime, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return DateTime{}, newError(ErrInvalid, fmt.Sprintf("time value %v", secs))
	}
	days := math.Floor(secs / secondsPerDay)
	if math.Abs(days) > maxDays {
		return DateTime{}, newError(ErrInvalid, fmt.Sprintf("time value %g out of range", secs))
	}
	sod := secs - days*secondsPerDay
	if sod < 0 {
		sod = 0
	}
	if sod >= secondsPerDay {
		days++
		sod -= secondsPerDay
	}
	y, m, d := civilFromJDN(epochJDN + int64(days))
	hour := int(sod / 3600)
	sod -= float64(hour) * 3600
	minute := int(sod / 60)
	sod -= float64(minute) * 60
	return DateTime{Year: y, Month: m, Day: d, Hour: hour, Minute: minute, Second: sod}, nil
}

func epochSeconds(dt DateTime) float64 {
	days := julianDayNumber(dt.Year, dt.Month, dt.Day) - epochJDN
	return float64(days)*secondsPerDay + float64(dt.Hour)*3600 + float64(dt.Minute)*60 + dt.Second
}

func isGregorianDate(y int64, m, d int) bool {
	if y != 1582 {
		return y > 1582
	}
	if m != 10 {
		return m > 10
	}
	return d >= 15
}

func isLeapYear(y int64) bool {
	if y < 1582 {
		return floorMod(y, 4) == 0
	}
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

var commonYearMonths = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func daysIn(y int64, m int) int {
	if m == 2 && isLeapYear(y) {
		return 29
	}
	return commonYearMonths[m-1]
}

// julianDayNumber counts days from 4713 BC January 1 (Julian).
func julianDayNumber(y int64, m, d int) int64 {
	a := int64(14-m) / 12
	yy := y + 4800 - a
	mm := int64(m) + 12*a - 3
	jdn := int64(d) + (153*mm+2)/5 + 365*yy + floorDiv(yy, 4)
	if isGregorianDate(y, m, d) {
		return jdn - floorDiv(yy, 100) + floorDiv(yy, 400) - 32045
	}
	return jdn - 32083
}

func civilFromJDN(j int64) (y int64, m, d int) {
	var b, c int64
	if j >= gregorianJDN {
		a := j + 32044
		b = floorDiv(4*a+3, 146097)
		c = a - floorDiv(146097*b, 4)
	} else {
		c = j + 32082
	}
	dd := floorDiv(4*c+3, 1461)
	e := c - floorDiv(1461*dd, 4)
	mm := (5*e + 2) / 153
	d = int(e - (153*mm+2)/5 + 1)
	m = int(mm + 3 - 12*(mm/10))
	y = 100*b + dd - 4800 + mm/10
	return y, m, d
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
