package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Mode is the periodicity strategy of a schedule.
type Mode int

const (
	ModeUnset Mode = iota
	ModeSingle
	ModeEvery
	ModeDelay
)

func (m Mode) String() string {
	switch m {
	case ModeUnset:
		return "NONE"
	case ModeSingle:
		return "SINGLE"
	case ModeEvery:
		return "EVERY"
	case ModeDelay:
		return "DELAY"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(m)) + ")"
	}
}

// Describe returns the human label used in settings output.
func (m Mode) Describe(period int) string {
	switch m {
	case ModeUnset:
		return "NONE - mode not set, task cannot be launched"
	case ModeSingle:
		return "SINGLE - launch once per interval"
	case ModeEvery:
		return fmt.Sprintf("EVERY - launches every %d min", period)
	case ModeDelay:
		return fmt.Sprintf("DELAY - launches %d min after the end of the previous launch", period)
	default:
		return m.String()
	}
}

// DefaultMinWindowMinutes is the floor for a time window when none is configured.
const DefaultMinWindowMinutes = 30

// Window is a time-of-day range in minutes since midnight, both ends inclusive.
type Window struct {
	Start int
	End   int
}

func (w Window) String() string { return formatClock(w.Start) + "-" + formatClock(w.End) }

// Length returns the window length in minutes.
func (w Window) Length() int { return w.End - w.Start }

// Contains reports whether minuteOfDay is inside the window.
func (w Window) Contains(minuteOfDay int) bool {
	return minuteOfDay >= w.Start && minuteOfDay <= w.End
}

// Overlaps reports whether two windows share at least one minute.
func (w Window) Overlaps(o Window) bool {
	return w.Start <= o.End && o.Start <= w.End
}

func formatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseClock parses a strict "HH:MM" string (two-digit hour 00-23, two-digit minute).
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, newError(ErrInvalidTime, s, "expected HH:MM")
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, newError(ErrInvalidTime, s, "expected HH:MM")
	}
	return h*60 + m, nil
}

// ParseWindow parses "HH:MM-HH:MM" into its two halves without validating order or length.
func ParseWindow(s string) (start, end string, err error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return "", "", newError(ErrInvalidTime, s, "expected HH:MM-HH:MM")
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

type intSet map[int]struct{}

func (s intSet) has(v int) bool {
	_, ok := s[v]
	return ok
}

func (s intSet) sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

func (s intSet) clone() intSet {
	out := make(intSet, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Schedule describes when a task is eligible to run. It is produced by a
// Builder and never changes afterwards; the zero value is an Unset schedule.
type Schedule struct {
	mode    Mode
	period  int
	windows []Window

	daysOfWeek  intSet
	daysOfMonth intSet
	months      intSet
	years       intSet
}

func (s *Schedule) Mode() Mode { return s.mode }

// Period returns the Every/Delay period in minutes.
func (s *Schedule) Period() int { return s.period }

// Windows returns the configured windows in insertion order.
func (s *Schedule) Windows() []Window { return append([]Window(nil), s.windows...) }

func (s *Schedule) DaysOfWeek() []int  { return s.daysOfWeek.sorted() }
func (s *Schedule) DaysOfMonth() []int { return s.daysOfMonth.sorted() }
func (s *Schedule) Months() []int      { return s.months.sorted() }
func (s *Schedule) Years() []int       { return s.years.sorted() }

// Constrained reports whether any axis (time, day, month, year) is restricted.
func (s *Schedule) Constrained() bool {
	return len(s.windows) > 0 ||
		len(s.daysOfWeek) > 0 ||
		len(s.daysOfMonth) > 0 ||
		len(s.months) > 0 ||
		len(s.years) > 0
}
