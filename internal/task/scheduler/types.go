package scheduler

import (
	"time"

	"pewcron/internal/task/engine"
)

// Config holds registry-wide defaults applied to every registered task.
type Config struct {
	// Defaults seeds each task's options; Name and Description are ignored.
	Defaults engine.Options
	// Location is the default timezone for schedule matching; nil means time.Local.
	Location *time.Location
}

// RunReport summarizes one pass over the registry.
type RunReport struct {
	Started  time.Time
	Duration time.Duration
	Results  []engine.Result
	// Errors counts tasks that could not be dispatched (configuration or storage errors).
	Errors int
}

// Launched counts tasks whose body ran during the pass.
func (r RunReport) Launched() int {
	n := 0
	for _, res := range r.Results {
		if res.Decision.Launched() {
			n++
		}
	}
	return n
}

// Failed counts launches that ended with all attempts failed.
func (r RunReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Settings is the introspection view of one task.
type Settings struct {
	TaskID             int       `json:"task_id" yaml:"task_id"`
	Name               string    `json:"name" yaml:"name"`
	Type               string    `json:"type" yaml:"type"`
	Description        string    `json:"description" yaml:"description"`
	Mode               string    `json:"mode" yaml:"mode"`
	ModeDescription    string    `json:"mode_description" yaml:"mode_description"`
	PreventOverlapping bool      `json:"prevent_overlapping" yaml:"prevent_overlapping"`
	LockResetTimeout   int       `json:"lock_reset_timeout" yaml:"lock_reset_timeout"`
	Tries              int       `json:"tries" yaml:"tries"`
	TryDelay           string    `json:"try_delay" yaml:"try_delay"`
	Timezone           string    `json:"timezone" yaml:"timezone"`
	Intervals          Intervals `json:"intervals" yaml:"intervals"`
}

// Intervals lists schedule constraints in ascending order.
type Intervals struct {
	Time        []string `json:"time" yaml:"time"`
	DaysOfWeek  []int    `json:"days_of_week" yaml:"days_of_week"`
	DaysOfMonth []int    `json:"days_of_month" yaml:"days_of_month"`
	Months      []int    `json:"months" yaml:"months"`
	Years       []int    `json:"years" yaml:"years"`
}
