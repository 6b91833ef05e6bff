package config

import (
	"errors"
	"fmt"
	"strings"

	"pewcron/internal/task/schedule"
)

const (
	TaskTypeCommand = "command"
	TaskTypeFile    = "file"
	TaskTypeBunch   = "bunch"
)

var knownDrivers = map[string]bool{
	"memory": true, "file": true, "sqlite": true, "sqlite3": true, "mysql": true,
}

var knownLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// ScheduleSpec returns the schedule part of a task entry.
func (t TaskConfig) ScheduleSpec() schedule.Spec {
	return schedule.Spec{
		Every:       t.Every,
		Delay:       t.Delay,
		Windows:     t.Windows,
		DaysOfWeek:  t.DaysOfWeek,
		DaysOfMonth: t.DaysOfMonth,
		Months:      t.Months,
		Years:       t.Years,
	}
}

func (t TaskConfig) hasSchedule() bool {
	return t.Every != nil || t.Delay != nil || len(t.Windows) > 0 || len(t.DaysOfWeek) > 0 ||
		len(t.DaysOfMonth) > 0 || len(t.Months) > 0 || len(t.Years) > 0
}

// Validate checks cfg after defaults are applied. Every problem is reported
// with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Errors.MinLevel != "" && !knownLevels[strings.ToLower(cfg.Logging.Errors.MinLevel)] {
		add("logging.errors.min_level: unknown level %q", cfg.Logging.Errors.MinLevel)
	}

	d := cfg.Defaults
	if d.LockResetTimeout != nil && *d.LockResetTimeout < 0 {
		add("defaults.lock_reset_timeout: must be >= 0")
	}
	if d.Tries < 1 {
		add("defaults.tries: must be >= 1")
	}
	if d.MinWindowMinutes < 1 {
		add("defaults.min_window_minutes: must be >= 1")
	}
	if d.MaxLogMessageLength < 0 || d.MaxExceptionLength < 0 {
		add("defaults: max lengths must be >= 0")
	}
	if _, err := ParseDurationField("defaults.try_delay", d.TryDelay); err != nil {
		errs = append(errs, err)
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if !knownDrivers[driver] {
		add("storage.driver: unknown driver %q (use memory, file, sqlite or mysql)", cfg.Storage.Driver)
	}
	if (driver == "file" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "" {
		add("storage.path: required for driver %q", driver)
	}
	if driver == "mysql" && strings.TrimSpace(cfg.Storage.DSN) == "" {
		add("storage.dsn: required for driver mysql")
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Storage.MaxLaunchesPerTask < 0 {
		add("storage.max_launches_per_task: must be >= 0")
	}

	if _, err := ParseLocationField("trigger.timezone", cfg.Trigger.Timezone); err != nil {
		errs = append(errs, err)
	}
	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		add("http.addr: required when http.enabled")
	}

	for i, t := range cfg.Tasks {
		errs = append(errs, validateTask(fmt.Sprintf("tasks[%d]", i), t, d.MinWindowMinutes, true)...)
	}
	return errors.Join(errs...)
}

func validateTask(path string, t TaskConfig, minWindow int, top bool) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s.%w", path, fmt.Errorf(format, args...)))
	}

	switch strings.ToLower(strings.TrimSpace(t.Type)) {
	case TaskTypeCommand:
		if strings.TrimSpace(t.Command) == "" {
			add("command: required for type command")
		}
	case TaskTypeFile:
		if strings.TrimSpace(t.Path) == "" {
			add("path: required for type file")
		}
	case TaskTypeBunch:
		if !top {
			add("type: bunch members cannot be bunches")
		}
		if len(t.Tasks) == 0 {
			add("tasks: a bunch needs at least one member")
		}
		for i, m := range t.Tasks {
			errs = append(errs, validateTask(fmt.Sprintf("%s.tasks[%d]", path, i), m, minWindow, false)...)
		}
	default:
		add("type: unknown task type %q (use command, file or bunch)", t.Type)
	}

	if !top {
		if t.hasSchedule() {
			add("schedule: bunch members take the schedule of the bunch")
		}
		return errs
	}

	if _, err := schedule.FromSpec(t.ScheduleSpec(), minWindow); err != nil {
		add("%w", err)
	}
	if t.Tries != nil && *t.Tries < 1 {
		add("tries: must be >= 1")
	}
	if t.LockResetTimeout != nil && *t.LockResetTimeout < 0 {
		add("lock_reset_timeout: must be >= 0")
	}
	if _, err := ParseDurationField(path+".try_delay", t.TryDelay); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLocationField(path+".timezone", t.Timezone); err != nil {
		errs = append(errs, err)
	}
	return errs
}
