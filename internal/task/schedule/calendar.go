package schedule

import (
	"strconv"
	"strings"
)

const (
	Monday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = map[string]int{
	"monday": Monday, "mo": Monday, "mon": Monday,
	"tuesday": Tuesday, "tu": Tuesday, "tue": Tuesday,
	"wednesday": Wednesday, "we": Wednesday, "wed": Wednesday,
	"thursday": Thursday, "th": Thursday, "thu": Thursday,
	"friday": Friday, "fr": Friday, "fri": Friday,
	"saturday": Saturday, "sa": Saturday, "sat": Saturday,
	"sunday": Sunday, "su": Sunday, "sun": Sunday,
}

var monthNames = map[string]int{
	"january": 1, "jan": 1, "ja": 1,
	"february": 2, "feb": 2, "fe": 2,
	"march": 3, "mar": 3, "ma": 3,
	"april": 4, "apr": 4, "ap": 4,
	"may": 5,
	"june": 6, "jun": 6,
	"july": 7, "jul": 7,
	"august": 8, "aug": 8, "au": 8,
	"september": 9, "sept": 9, "sep": 9,
	"october": 10, "oct": 10, "oc": 10,
	"november": 11, "nov": 11, "no": 11,
	"december": 12, "dec": 12, "de": 12,
}

// ParseDayOfWeek converts "1".."7" or a case-insensitive day name or
// abbreviation into an ISO day number (Monday=1, Sunday=7).
func ParseDayOfWeek(token string) (int, error) {
	return parseNamed(token, dayNames, 1, 7, ErrInvalidDayOfWeek, "use 1-7, Monday-Sunday, Mon-Sun or Mo-Su")
}

// ParseMonth converts "1".."12" or a case-insensitive month name or
// abbreviation into a month number.
func ParseMonth(token string) (int, error) {
	return parseNamed(token, monthNames, 1, 12, ErrInvalidMonth, "use 1-12, January-December, Jan-Dec or Ja-De")
}

func parseNamed(token string, names map[string]int, lo, hi int, kind error, hint string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(token))
	if n, ok := names[s]; ok {
		return n, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= lo && n <= hi {
		return n, nil
	}
	return 0, newError(kind, token, hint)
}

// isoWeekday maps time.Weekday (Sunday=0) onto ISO numbering.
func isoWeekday(wd int) int {
	if wd == 0 {
		return Sunday
	}
	return wd
}
