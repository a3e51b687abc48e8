package units

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// 1979-1-1, 1979-01-01T00:00, -100-03-01 12:30:15.5 -6:00, 2001-01-01 00:00:00 UTC
	timestampRE = regexp.MustCompile(`^([+-]?\d+)-(\d{1,2})-(\d{1,2})` +
		`(?:(?:T|\s+)(\d{1,2}):(\d{1,2})(?::(\d{1,2}(?:\.\d*)?))?)?` +
		`(?:\s*(Z|UTC|GMT|[+-]\d{1,2}(?::?\d{2})?))?$`)
	compactDateRE = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})(\D.*)?$`)
)

const maxTimestampYear = 1 << 40

func looksLikeTimestamp(text string) bool {
	if compactDateRE.MatchString(text) {
		return true
	}
	body := strings.TrimLeft(text, "+-")
	return strings.ContainsAny(body, "-:")
}

// parseTimestamp converts a timestamp to seconds since the internal epoch.
func parseTimestamp(text string) (float64, error) {
	if m := compactDateRE.FindStringSubmatch(text); m != nil {
		text = m[1] + "-" + m[2] + "-" + m[3] + m[4]
	}
	m := timestampRE.FindStringSubmatch(text)
	if m == nil {
		return 0, syntaxf("bad timestamp %q", text)
	}
	year, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || year > maxTimestampYear || year < -maxTimestampYear {
		return 0, syntaxf("timestamp year %q out of range", m[1])
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 {
		return 0, syntaxf("timestamp month %d out of range", month)
	}
	if day < 1 || day > daysIn(year, month) {
		return 0, syntaxf("timestamp day %d out of range for %d-%02d", day, year, month)
	}

	var hour, minute int
	var second float64
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
		if m[6] != "" {
			second, _ = strconv.ParseFloat(m[6], 64)
		}
	}
	if hour > 23 || minute > 59 || second >= 61 {
		return 0, syntaxf("timestamp clock %02d:%02d:%g out of range", hour, minute, second)
	}

	zone, err := zoneOffset(m[7])
	if err != nil {
		return 0, err
	}
	dt := DateTime{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second}
	return epochSeconds(dt) - zone, nil
}

// ParseDate parses a timestamp as written after "since" into a date in the
// mixed Julian/Gregorian calendar. A zone offset is applied, giving UTC.
func ParseDate(text string) (DateTime, error) {
	secs, err := parseTimestamp(strings.TrimSpace(text))
	if err != nil {
		return DateTime{}, err
	}
	return fromEpochSeconds(secs)
}

// zoneOffset returns the zone's offset east of UTC in seconds.
func zoneOffset(z string) (float64, error) {
	switch z {
	case "", "Z", "UTC", "GMT":
		return 0, nil
	}
	sign := 1.0
	if z[0] == '-' {
		sign = -1
	}
	z = strings.ReplaceAll(z[1:], ":", "")
	var h, mins int
	switch len(z) {
	case 1, 2:
		h, _ = strconv.Atoi(z)
	case 3, 4:
		h, _ = strconv.Atoi(z[:len(z)-2])
		mins, _ = strconv.Atoi(z[len(z)-2:])
	default:
		return 0, syntaxf("bad time zone %q", z)
	}
	if h > 14 || mins > 59 {
		return 0, syntaxf("time zone %q out of range", z)
	}
	return sign * float64(h*3600+mins*60), nil
}
