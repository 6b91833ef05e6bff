package schedule

import (
	"strconv"
	"strings"
	"time"
)

// axis outcome while computing an identity
const (
	wildcard = 0
	noMatch  = -1
)

// WindowIdentity returns a key naming the recurrence window t belongs to:
// "year::month::dow::dom::window". Unconstrained axes render as 0. A day axis
// that did not match renders as -1 when the other day axis matched. ok is
// false when t is outside every window.
//
// Days of week use ISO numbering (Monday=1). The caller is responsible for
// converting t into the task's location.
func (s *Schedule) WindowIdentity(t time.Time) (id string, ok bool) {
	if s.mode == ModeSingle && !s.Constrained() {
		return "", false
	}

	year, ok := axis(s.years, t.Year())
	if !ok {
		return "", false
	}
	month, ok := axis(s.months, int(t.Month()))
	if !ok {
		return "", false
	}

	dow, dowOK := axis(s.daysOfWeek, isoWeekday(int(t.Weekday())))
	dom, domOK := axis(s.daysOfMonth, t.Day())
	switch {
	case !dowOK && !domOK:
		return "", false
	case dowOK && dow == wildcard && !domOK:
		return "", false
	case !dowOK && domOK && dom == wildcard:
		return "", false
	}
	if !dowOK {
		dow = noMatch
	}
	if !domOK {
		dom = noMatch
	}

	window := "0"
	if len(s.windows) > 0 {
		minute := t.Hour()*60 + t.Minute()
		window = ""
		for _, w := range s.windows {
			if w.Contains(minute) {
				window = w.String()
				break
			}
		}
		if window == "" {
			return "", false
		}
	}

	var b strings.Builder
	b.WriteString(strconv.Itoa(year))
	b.WriteString("::")
	b.WriteString(strconv.Itoa(month))
	b.WriteString("::")
	b.WriteString(strconv.Itoa(dow))
	b.WriteString("::")
	b.WriteString(strconv.Itoa(dom))
	b.WriteString("::")
	b.WriteString(window)
	return b.String(), true
}

// InWindow reports whether t is eligible for dispatch.
func (s *Schedule) InWindow(t time.Time) bool {
	switch s.mode {
	case ModeUnset:
		return false
	case ModeSingle:
		_, ok := s.WindowIdentity(t)
		return ok
	default:
		if !s.Constrained() {
			return true
		}
		_, ok := s.WindowIdentity(t)
		return ok
	}
}

// SameWindow reports whether a and b map to the same identity; two absent
// identities compare equal.
func (s *Schedule) SameWindow(a, b time.Time) bool {
	ida, oka := s.WindowIdentity(a)
	idb, okb := s.WindowIdentity(b)
	return oka == okb && ida == idb
}

// axis returns (wildcard, true) for an empty set, (v, true) on a match and
// (0, false) otherwise.
func axis(set intSet, v int) (int, bool) {
	if len(set) == 0 {
		return wildcard, true
	}
	if set.has(v) {
		return v, true
	}
	return 0, false
}
