package options

import (
	"math"
	"time"
)

// ExitOffsetDays is how long before expiration a position is force-closed.
const ExitOffsetDays = 21

// ExitDate returns the forced exit date for an expiration.
func ExitDate(expiration time.Time) time.Time {
	return expiration.AddDate(0, 0, -ExitOffsetDays)
}

// DaysBetween counts calendar days from one date to another, comparing each
// date in its own location and ignoring the time of day. Negative when to is
// before from.
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	f := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(math.Round(t.Sub(f).Hours() / 24))
}

// OnOrAfter reports whether day a is the same calendar day as b or later.
func OnOrAfter(a, b time.Time) bool {
	return DaysBetween(b, a) >= 0
}

// ThirdFriday returns the monthly expiration date of a month.
func ThirdFriday(year int, month time.Month, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+14)
}

// FollowingThirdFriday returns the third Friday of the month after now.
func FollowingThirdFriday(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	return ThirdFriday(next.Year(), next.Month(), now.Location())
}

// NextFriday returns the first Friday strictly after now.
func NextFriday(now time.Time) time.Time {
	days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return truncateDay(now).AddDate(0, 0, days)
}

// PreviousMarketOpenDay returns the last weekday strictly before now.
func PreviousMarketOpenDay(now time.Time) time.Time {
	day := truncateDay(now).AddDate(0, 0, -1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
