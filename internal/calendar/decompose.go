package calendar

import "math"

const (
	secondsPerDay    = 86400
	secondsPerHour   = 3600
	secondsPerMinute = 60

	// dayRoundoff absorbs floating-point error when whole days are split
	// off a count of seconds, so 86399.999 seconds reads as one day.
	dayRoundoff = 0.01

	// maxDays keeps day counts where float64 represents every integer.
	maxDays = 1 << 53
)

func inRange(secs float64) bool {
	return !math.IsNaN(secs) && !math.IsInf(secs, 0) && math.Abs(secs)/secondsPerDay <= maxDays
}

// add lays secs seconds out after ref in the fixed calendar m. secs must
// satisfy inRange; all day and year counts are then exact int64 values.
func (m Model) add(ref DateTime, secs float64) DateTime {
	year := ref.Year
	daysPerYear := int64(m.daysPerYear)
	secondsPerYear := float64(secondsPerDay * daysPerYear)

	// Step the reference back whole years so the offset is never negative.
	if secs < 0 {
		back := int64(-secs/secondsPerYear) + 1
		year -= back
		secs += float64(back) * secondsPerYear
	}

	// Whole days since the reference, and the seconds left over.
	days, extra := splitDays(secs)

	// Count from January 1st 00:00 of the reference year instead.
	if ref.Month != 1 || ref.Day != 1 || ref.Hour != 0 || ref.Minute != 0 || ref.Second != 0 {
		extra += ref.Second + float64(ref.Minute)*secondsPerMinute + float64(ref.Hour)*secondsPerHour
		days += int64(m.DayOfYear(ref.Month, ref.Day))
		if extra+dayRoundoff >= secondsPerDay {
			carry, rest := splitDays(extra)
			days += carry
			extra = rest
		}
	}

	elapsed := days / daysPerYear
	year += elapsed
	days -= elapsed * daysPerYear

	month := 1
	for days > int64(m.daysPerMonth[month-1]-1) {
		days -= int64(m.daysPerMonth[month-1])
		month++
	}

	hour := int(extra / secondsPerHour)
	extra -= float64(hour) * secondsPerHour
	minute := int(extra / secondsPerMinute)
	extra -= float64(minute) * secondsPerMinute

	return DateTime{
		Year:   year,
		Month:  month,
		Day:    int(days) + 1,
		Hour:   hour,
		Minute: minute,
		Second: extra,
	}
}

// splitDays splits non-negative secs into whole days and remaining seconds.
func splitDays(secs float64) (int64, float64) {
	days := int64((secs + dayRoundoff) / secondsPerDay)
	extra := secs - float64(days)*secondsPerDay
	if extra < 0 {
		extra = 0
	}
	return days, extra
}
