package schedule

import (
	"fmt"
	"strconv"
)

// Builder assembles a Schedule. Every setter validates its input and returns
// a *Error on failure, leaving the builder unchanged.
type Builder struct {
	minWindow int
	s         Schedule
}

// NewBuilder returns a builder that rejects windows shorter than minWindowMinutes.
// Values below 1 fall back to DefaultMinWindowMinutes.
func NewBuilder(minWindowMinutes int) *Builder {
	if minWindowMinutes < 1 {
		minWindowMinutes = DefaultMinWindowMinutes
	}
	return &Builder{
		minWindow: minWindowMinutes,
		s: Schedule{
			daysOfWeek:  intSet{},
			daysOfMonth: intSet{},
			months:      intSet{},
			years:       intSet{},
		},
	}
}

// Every launches the task every minutes, counted from the previous launch start.
func (b *Builder) Every(minutes int) error {
	if b.s.mode == ModeDelay {
		return newError(ErrModeConflict, "", "cannot set every: delay is already set")
	}
	if minutes < 0 {
		return newError(ErrNegativePeriod, strconv.Itoa(minutes), "")
	}
	b.s.mode = ModeEvery
	b.s.period = minutes
	return nil
}

// Delay launches the task minutes after the previous launch ended.
func (b *Builder) Delay(minutes int) error {
	if b.s.mode == ModeEvery {
		return newError(ErrModeConflict, "", "cannot set delay: every is already set")
	}
	if minutes < 0 {
		return newError(ErrNegativePeriod, strconv.Itoa(minutes), "")
	}
	b.s.mode = ModeDelay
	b.s.period = minutes
	return nil
}

// AddWindow restricts launches to [start, end] ("HH:MM", inclusive).
func (b *Builder) AddWindow(start, end string) error {
	from, err := ParseClock(start)
	if err != nil {
		return err
	}
	to, err := ParseClock(end)
	if err != nil {
		return err
	}
	w := Window{Start: from, End: to}
	if from >= to {
		return newError(ErrWindowOrder, w.String(), "")
	}
	if w.Length() < b.minWindow {
		return newError(ErrWindowTooShort, w.String(),
			fmt.Sprintf("minimum is %d min; widen the window or lower min_window_minutes", b.minWindow))
	}
	for _, existing := range b.s.windows {
		if w.Overlaps(existing) {
			return newError(ErrWindowOverlap, w.String(), "overlaps with "+existing.String())
		}
	}
	b.s.windows = append(b.s.windows, w)
	b.promote()
	return nil
}

// DaysOfWeek accepts "1".."7" or day names/abbreviations; repeated calls add days.
func (b *Builder) DaysOfWeek(tokens ...string) error {
	days := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		d, err := ParseDayOfWeek(tok)
		if err != nil {
			return err
		}
		days = append(days, d)
	}
	add(b.s.daysOfWeek, days)
	b.promote()
	return nil
}

// DaysOfMonth accepts 1..31; repeated calls add days.
func (b *Builder) DaysOfMonth(days ...int) error {
	for _, d := range days {
		if d < 1 || d > 31 {
			return newError(ErrInvalidDayOfMonth, strconv.Itoa(d), "days must be between 1 and 31")
		}
	}
	add(b.s.daysOfMonth, days)
	b.promote()
	return nil
}

// Months accepts "1".."12" or month names/abbreviations; repeated calls add months.
func (b *Builder) Months(tokens ...string) error {
	months := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		m, err := ParseMonth(tok)
		if err != nil {
			return err
		}
		months = append(months, m)
	}
	add(b.s.months, months)
	b.promote()
	return nil
}

// Years accepts 1900..2999; repeated calls add years.
func (b *Builder) Years(years ...int) error {
	for _, y := range years {
		if y < 1900 || y > 2999 {
			return newError(ErrInvalidYear, strconv.Itoa(y), "years must be between 1900 and 2999")
		}
	}
	add(b.s.years, years)
	b.promote()
	return nil
}

// Build returns an independent copy of the current state.
func (b *Builder) Build() *Schedule {
	return &Schedule{
		mode:        b.s.mode,
		period:      b.s.period,
		windows:     append([]Window(nil), b.s.windows...),
		daysOfWeek:  b.s.daysOfWeek.clone(),
		daysOfMonth: b.s.daysOfMonth.clone(),
		months:      b.s.months.clone(),
		years:       b.s.years.clone(),
	}
}

// promote turns an Unset schedule into Single once a constraint exists.
func (b *Builder) promote() {
	if b.s.mode == ModeUnset {
		b.s.mode = ModeSingle
	}
}

func add(set intSet, values []int) {
	for _, v := range values {
		set[v] = struct{}{}
	}
}
