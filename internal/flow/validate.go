package flow

import (
	"fmt"
	"regexp"
	"time"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\d\s()+-]+$`)
)

const minPhoneLen = 7

func validEmail(s string) bool { return emailPattern.MatchString(s) }

func validPhone(s string) bool {
	return len(s) >= minPhoneLen && phonePattern.MatchString(s)
}

// FormatDate renders a day the long way, e.g. "October 14th, 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s %d%s, %d", t.Month(), t.Day(), ordinal(t.Day()), t.Year())
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return "th"
	}
	switch n % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}

// calendarDay keeps the year, month and day of t as written and places that
// day at midnight in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func sameOrAfterDay(day, ref time.Time) bool {
	return !calendarDay(day, ref.Location()).Before(calendarDay(ref, ref.Location()))
}
