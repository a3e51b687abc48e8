package calendar

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/ryan-winkler/cfcalendar/internal/units"
)

func newTestConverter(t *testing.T) (*Converter, *units.System, *bytes.Buffer) {
	t.Helper()
	sys := units.New()
	if err := sys.Init(""); err != nil {
		t.Fatalf("units Init: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return New(sys, logger), sys, &logs
}

func mustScan(t *testing.T, sys *units.System, spec string) units.Unit {
	t.Helper()
	u, err := sys.Scan(spec)
	if err != nil {
		t.Fatalf("Scan(%q): %v", spec, err)
	}
	return u
}

func date(y int64, m, d int) DateTime {
	return DateTime{Year: y, Month: m, Day: d}
}

func TestConvertFixedCalendars(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	tests := []struct {
		units    string
		calendar string
		value    float64
		want     DateTime
	}{
		// No leap days, so 400*365 days is 400 years exactly.
		{"days since 0001-01-01", "noleap", 146000, date(401, 1, 1)},
		{"days since 1601-01-01", "noleap", 146000, date(2001, 1, 1)},
		{"days since 2001-01-01", "noleap", -146000, date(1601, 1, 1)},
		{"days since 1001-01-01", "365_day", -146000, date(601, 1, 1)},
		// 146000 = 405*360 + 200.
		{"days since 0001-01-01", "360_day", 146000, date(406, 7, 21)},
		// -146000 = -406*360 + 160.
		{"days since 2001-01-01", "360_day", -146000, date(1595, 6, 11)},
		{"hours since 1979-01-01", "noleap", 24 * 59, date(1979, 3, 1)},
		{"hours since 1979-01-01", "360_day", 24 * 59, date(1979, 2, 30)},
		{"days since 1979-12-31", "noleap", 1, date(1980, 1, 1)},
		{"days since 1979-03-01", "noleap", -1, date(1979, 2, 28)},
		{"days since 1979-01-01", "noleap", 0.5, DateTime{Year: 1979, Month: 1, Day: 1, Hour: 12}},
	}
	for _, tt := range tests {
		u := mustScan(t, sys, tt.units)
		got, err := c.Convert(tt.value, u, tt.calendar)
		if err != nil {
			t.Errorf("Convert(%v, %q, %q): %v", tt.value, tt.units, tt.calendar, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Convert(%v, %q, %q) = %v, want %v", tt.value, tt.units, tt.calendar, got, tt.want)
		}
	}
}

func TestConvertStandardDelegates(t *testing.T) {
	c, sys, logs := newTestConverter(t)
	u := mustScan(t, sys, "days since 0001-01-01")
	want, err := sys.Calendar(146000, u)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "standard", "Gregorian", "STANDARD"} {
		got, err := c.Convert(146000, u, name)
		if err != nil {
			t.Fatalf("Convert(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("Convert(%q) = %v, want %v", name, got, want)
		}
	}
	if logs.Len() != 0 {
		t.Errorf("standard calendar logged diagnostics: %s", logs.String())
	}
}

func TestConvertZeroIsReferenceDate(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	for _, spec := range []string{
		"days since 1850-01-01",
		"hours since 1979-03-15 06:30",
		"seconds since 1979-03-15 06:30:30.5",
		"minutes since 2100-11-28 23:59",
		"days since -0500-07-04 12:00",
	} {
		u := mustScan(t, sys, spec)
		ref, secs, err := c.ReferenceDate(0, u)
		if err != nil {
			t.Fatal(err)
		}
		if secs != 0 {
			t.Errorf("ReferenceDate(0, %q) offset = %v, want 0", spec, secs)
		}
		for _, m := range []Model{NoLeap, Day360} {
			got, err := c.ConvertWith(0, u, m)
			if err != nil {
				t.Fatal(err)
			}
			if got != ref {
				t.Errorf("%s: ConvertWith(0, %q) = %v, want reference %v", m.Name(), spec, got, ref)
			}
		}
	}
}

func TestReferenceDate(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "hours since 1979-01-01 06:00")
	ref, secs, err := c.ReferenceDate(2.5, u)
	if err != nil {
		t.Fatal(err)
	}
	if want := (DateTime{Year: 1979, Month: 1, Day: 1, Hour: 6}); ref != want {
		t.Errorf("ref = %v, want %v", ref, want)
	}
	if secs != 9000 {
		t.Errorf("offset = %v, want 9000", secs)
	}
}

func TestConvertStartOfYear(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 1850-01-01")
	for _, m := range []Model{NoLeap, Day360} {
		for _, years := range []int64{-1000, -1, 0, 1, 7, 250, 100000} {
			got, err := c.ConvertWith(float64(years*int64(m.DaysPerYear())), u, m)
			if err != nil {
				t.Fatal(err)
			}
			if want := date(1850+years, 1, 1); got != want {
				t.Errorf("%s: %d years = %v, want %v", m.Name(), years, got, want)
			}
		}
	}
}

func TestDay360RoundTrip(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 1900-01-01")
	for _, k := range []int64{0, 1, 29, 30, 359, 360, 361, 146000, -1, -30, -360, -146000, 987654} {
		got, err := c.Convert(float64(k), u, "360_day")
		if err != nil {
			t.Fatal(err)
		}
		days := (got.Year-1900)*360 + int64(got.Month-1)*30 + int64(got.Day-1)
		if days != k {
			t.Errorf("360_day %d days -> %v -> %d days", k, got, days)
		}
		if got.Hour != 0 || got.Minute != 0 || got.Second != 0 {
			t.Errorf("360_day %d days -> %v has a time of day", k, got)
		}
	}
}

func before(a, b DateTime) bool {
	switch {
	case a.Year != b.Year:
		return a.Year < b.Year
	case a.Month != b.Month:
		return a.Month < b.Month
	case a.Day != b.Day:
		return a.Day < b.Day
	case a.Hour != b.Hour:
		return a.Hour < b.Hour
	case a.Minute != b.Minute:
		return a.Minute < b.Minute
	}
	return a.Second < b.Second
}

func TestConvertMonotonic(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 2000-02-10 05:00")
	for _, m := range []Model{NoLeap, Day360} {
		prev, err := c.ConvertWith(-800, u, m)
		if err != nil {
			t.Fatal(err)
		}
		for v := -800.0; v <= 800; v += 0.25 {
			got, err := c.ConvertWith(v, u, m)
			if err != nil {
				t.Fatal(err)
			}
			if before(got, prev) {
				t.Fatalf("%s: value %v gave %v, earlier than %v", m.Name(), v, got, prev)
			}
			prev = got
		}
	}
}

func TestConvertWholeYearShift(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "seconds since 1950-06-15 12:00")
	const v = 123456789.5
	for _, m := range []Model{NoLeap, Day360} {
		base, err := c.ConvertWith(v, u, m)
		if err != nil {
			t.Fatal(err)
		}
		yearSecs := float64(secondsPerDay * m.DaysPerYear())
		for _, n := range []int64{1, 3, 10, 1000} {
			got, err := c.ConvertWith(v-float64(n)*yearSecs, u, m)
			if err != nil {
				t.Fatal(err)
			}
			want := base
			want.Year -= n
			if got != want {
				t.Errorf("%s: shifted by %d years = %v, want %v", m.Name(), n, got, want)
			}
		}
	}
}

func TestConvertClockCarriesIntoNextDay(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "hours since 2000-01-01 12:00")
	got, err := c.Convert(18, u, "noleap")
	if err != nil {
		t.Fatal(err)
	}
	if want := (DateTime{Year: 2000, Month: 1, Day: 2, Hour: 6}); got != want {
		t.Errorf("Convert = %v, want %v", got, want)
	}
}

func TestConvertFieldsInRange(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "seconds since 1999-07-31 23:59:59")
	for _, m := range []Model{NoLeap, Day360} {
		for v := -3e7; v < 3e7; v += 987654.321 {
			got, err := c.ConvertWith(v, u, m)
			if err != nil {
				t.Fatal(err)
			}
			if got.Month < 1 || got.Month > 12 || got.Day < 1 || got.Day > m.DaysInMonth(got.Month) ||
				got.Hour < 0 || got.Hour > 23 || got.Minute < 0 || got.Minute > 59 || got.Second < 0 || got.Second >= 60 {
				t.Fatalf("%s: value %v gave out-of-range %+v", m.Name(), v, got)
			}
		}
	}
}

func TestConvertValueRange(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 2000-01-01")
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 1e300, -1e300} {
		if _, err := c.Convert(v, u, "noleap"); !errors.Is(err, ErrValueRange) {
			t.Errorf("Convert(%v) err = %v, want ErrValueRange", v, err)
		}
	}
	if _, err := c.Convert(1e12, u, "360_day"); err != nil {
		t.Errorf("Convert(1e12 days): %v", err)
	}
}

func TestConvertNotTimeLike(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "meters")
	for _, name := range []string{"standard", "noleap", "360_day"} {
		if _, err := c.Convert(1, u, name); !errors.Is(err, units.ErrNotTime) {
			t.Errorf("Convert(meters, %q) err = %v, want ErrNotTime", name, err)
		}
	}
}

func TestUnknownCalendarFallsBackAndWarnsOnce(t *testing.T) {
	c, sys, logs := newTestConverter(t)
	u := mustScan(t, sys, "days since 1900-01-01")
	want, err := sys.Calendar(40000, u)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		for _, name := range []string{"martian", "all_leap"} {
			got, err := c.Convert(40000, u, name)
			if err != nil {
				t.Fatalf("call %d: %v", i, err)
			}
			if got != want {
				t.Errorf("call %d: Convert(%q) = %v, want standard %v", i, name, got, want)
			}
		}
	}
	if n := strings.Count(logs.String(), "unknown calendar"); n != 1 {
		t.Errorf("unknown calendar warned %d times, want 1:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "calendar=martian") {
		t.Errorf("warning does not name the first calendar:\n%s", logs.String())
	}
}

func TestUnimplementedCalendarsFallBack(t *testing.T) {
	c, sys, logs := newTestConverter(t)
	u := mustScan(t, sys, "days since 1500-01-01")
	want, err := sys.Calendar(1000, u)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		for _, name := range []string{"proleptic_gregorian", "Julian"} {
			got, err := c.Convert(1000, u, name)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("Convert(%q) = %v, want standard %v", name, got, want)
			}
		}
	}
	if n := strings.Count(logs.String(), "not implemented"); n != 2 {
		t.Errorf("got %d not-implemented notices, want one per calendar:\n%s", n, logs.String())
	}
}

func TestUnknownCalendarWarnsOnceConcurrently(t *testing.T) {
	c, sys, logs := newTestConverter(t)
	u := mustScan(t, sys, "days since 1900-01-01")
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Convert(float64(i), u, "tropical"); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if n := strings.Count(logs.String(), "unknown calendar"); n != 1 {
		t.Errorf("warned %d times, want 1", n)
	}
}

type brokenUnits struct {
	mu    sync.Mutex
	scans int
}

func (b *brokenUnits) Scan(string) (units.Unit, error) {
	b.mu.Lock()
	b.scans++
	b.mu.Unlock()
	return units.Unit{}, units.ErrNotInitialized
}

func (b *brokenUnits) Calendar(float64, units.Unit) (units.DateTime, error) {
	return units.DateTime{}, errors.New("calendar should not be reached")
}

func (b *brokenUnits) InvCalendar(units.DateTime, units.Unit) (float64, error) {
	return 0, errors.New("invcalendar should not be reached")
}

func TestInitFailureIsFatal(t *testing.T) {
	b := &brokenUnits{}
	c := New(b, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	if err := c.Init(); !errors.Is(err, ErrUninitialized) {
		t.Fatalf("Init err = %v, want ErrUninitialized", err)
	}
	u := units.Unit{Factor: 86400, Power: [units.NumBase]int{units.Time: 1}}
	for _, name := range []string{"standard", "noleap", "360_day", "bogus"} {
		_, err := c.Convert(0, u, name)
		if !errors.Is(err, ErrUninitialized) {
			t.Errorf("Convert(%q) err = %v, want ErrUninitialized", name, err)
		}
		if !errors.Is(err, units.ErrNotInitialized) {
			t.Errorf("Convert(%q) err = %v, want the unit system cause kept", name, err)
		}
	}
	if b.scans != 1 {
		t.Errorf("reference unit scanned %d times, want 1", b.scans)
	}
}

func TestInvert(t *testing.T) {
	c, sys, _ := newTestConverter(t)
	u := mustScan(t, sys, "days since 1970-01-01")
	v, err := c.Invert(date(1970, 1, 11), u)
	if err != nil {
		t.Fatal(err)
	}
	if v != 10 {
		t.Errorf("Invert = %v, want 10", v)
	}
}
