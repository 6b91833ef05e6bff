package schedule

import "fmt"

// Spec is the declarative form of a schedule as it appears in config files.
// Nil Every/Delay mean "not set"; a set value of 0 is a valid period.
type Spec struct {
	Every       *int
	Delay       *int
	Windows     []string // "HH:MM-HH:MM"
	DaysOfWeek  []string
	DaysOfMonth []int
	Months      []string
	Years       []int
}

// FromSpec validates spec and builds a Schedule. The first failing field is
// reported with its name.
func FromSpec(spec Spec, minWindowMinutes int) (*Schedule, error) {
	b := NewBuilder(minWindowMinutes)
	if spec.Every != nil {
		if err := b.Every(*spec.Every); err != nil {
			return nil, fmt.Errorf("every: %w", err)
		}
	}
	if spec.Delay != nil {
		if err := b.Delay(*spec.Delay); err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
	}
	for i, raw := range spec.Windows {
		start, end, err := ParseWindow(raw)
		if err == nil {
			err = b.AddWindow(start, end)
		}
		if err != nil {
			return nil, fmt.Errorf("windows[%d]: %w", i, err)
		}
	}
	if len(spec.DaysOfWeek) > 0 {
		if err := b.DaysOfWeek(spec.DaysOfWeek...); err != nil {
			return nil, fmt.Errorf("days_of_week: %w", err)
		}
	}
	if len(spec.DaysOfMonth) > 0 {
		if err := b.DaysOfMonth(spec.DaysOfMonth...); err != nil {
			return nil, fmt.Errorf("days_of_month: %w", err)
		}
	}
	if len(spec.Months) > 0 {
		if err := b.Months(spec.Months...); err != nil {
			return nil, fmt.Errorf("months: %w", err)
		}
	}
	if len(spec.Years) > 0 {
		if err := b.Years(spec.Years...); err != nil {
			return nil, fmt.Errorf("years: %w", err)
		}
	}
	return b.Build(), nil
}
