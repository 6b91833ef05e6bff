package scheduler

import (
	"slices"
	"time"

	"pewcron/internal/task/engine"
	"pewcron/internal/task/schedule"
)

// Settings returns the introspection view of every task in registration order.
func (s *Service) Settings() []Settings {
	tasks := s.Tasks()
	out := make([]Settings, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSettings(t))
	}
	return out
}

// TaskSettings describes one task.
func TaskSettings(t *engine.Task) Settings {
	sched := t.Schedule
	windows := sched.Windows()
	slices.SortFunc(windows, func(a, b schedule.Window) int { return a.Start - b.Start })
	times := make([]string, 0, len(windows))
	for _, w := range windows {
		times = append(times, w.String())
	}
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	return Settings{
		TaskID:             t.ID,
		Name:               t.Options.Name,
		Type:               t.Type(),
		Description:        t.Options.Description,
		Mode:               sched.Mode().String(),
		ModeDescription:    sched.Mode().Describe(sched.Period()),
		PreventOverlapping: t.Options.PreventOverlapping,
		LockResetTimeout:   t.Options.LockResetTimeout,
		Tries:              t.Options.Tries,
		TryDelay:           t.Options.TryDelay.String(),
		Timezone:           loc.String(),
		Intervals: Intervals{
			Time:        times,
			DaysOfWeek:  sched.DaysOfWeek(),
			DaysOfMonth: sched.DaysOfMonth(),
			Months:      sched.Months(),
			Years:       sched.Years(),
		},
	}
}
