package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"pewcron/internal/config"
	"pewcron/internal/storage"
	"pewcron/internal/task/engine"
	"pewcron/internal/task/runner"
	"pewcron/internal/task/schedule"
	"pewcron/internal/task/scheduler"
	logx "pewcron/pkg/logx"
)

func loggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		Debug:   c.Debug,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Errors: logx.ErrorsConfig{
			Enabled:    c.Errors.Enabled,
			Path:       c.Errors.Path,
			MinLevel:   c.Errors.MinLevel,
			RatePerSec: c.Errors.RatePerSec,
		},
	}
}

func storageConfig(c config.StorageConfig, clock func() time.Time) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:             c.Driver,
		Path:               c.Path,
		DSN:                c.DSN,
		BusyTimeout:        busy,
		MaxLaunchesPerTask: c.MaxLaunchesPerTask,
		Clock:              clock,
	}, nil
}

func messageTemplate(d config.DefaultsConfig) logx.Template {
	return logx.Template{
		MessageFormat:      d.LogMessageFormat,
		ExceptionFormat:    d.LogExceptionFormat,
		MaxMessageLength:   d.MaxLogMessageLength,
		MaxExceptionLength: d.MaxExceptionLength,
	}
}

// defaultOptions turns the defaults section into engine options.
func defaultOptions(d config.DefaultsConfig) (engine.Options, error) {
	opts := engine.DefaultOptions()
	opts.PreventOverlapping = d.PreventOverlapping
	if d.LockResetTimeout != nil {
		opts.LockResetTimeout = *d.LockResetTimeout
	}
	if d.Tries > 0 {
		opts.Tries = d.Tries
	}
	delay, err := config.ParseDurationField("defaults.try_delay", d.TryDelay)
	if err != nil {
		return engine.Options{}, err
	}
	opts.TryDelay = delay
	return opts, nil
}

// buildService registers every task entry of cfg, in order, on a new
// scheduler backed by eng.
func buildService(cfg *config.Config, eng *engine.Engine, log logx.Logger, stdout io.Writer) (*scheduler.Service, error) {
	defaults, err := defaultOptions(cfg.Defaults)
	if err != nil {
		return nil, err
	}
	loc, err := config.ParseLocationField("trigger.timezone", cfg.Trigger.Timezone)
	if err != nil {
		return nil, err
	}

	var stream io.Writer
	if cfg.Defaults.CommandOutput {
		stream = stdout
	}

	svc := scheduler.New(scheduler.Config{Defaults: defaults, Location: loc}, eng, log)
	for i, tc := range cfg.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		r, err := buildRunner(tc, stream)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		sched, err := schedule.FromSpec(tc.ScheduleSpec(), cfg.Defaults.MinWindowMinutes)
		if err != nil {
			return nil, fmt.Errorf("%s.%w", path, err)
		}
		opts, err := taskOptions(path, tc)
		if err != nil {
			return nil, err
		}
		if _, err := svc.Register(r, sched, opts...); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return svc, nil
}

func taskOptions(path string, tc config.TaskConfig) ([]scheduler.TaskOption, error) {
	var opts []scheduler.TaskOption
	if strings.TrimSpace(tc.Name) != "" {
		opts = append(opts, scheduler.WithName(tc.Name))
	}
	if tc.Description != "" {
		opts = append(opts, scheduler.WithDescription(tc.Description))
	}
	if tc.PreventOverlapping != nil {
		opts = append(opts, scheduler.WithPreventOverlapping(*tc.PreventOverlapping))
	}
	if tc.LockResetTimeout != nil {
		opts = append(opts, scheduler.WithLockResetTimeout(*tc.LockResetTimeout))
	}
	if tc.Tries != nil {
		opts = append(opts, scheduler.WithTries(*tc.Tries))
	}
	if strings.TrimSpace(tc.TryDelay) != "" {
		d, err := config.ParseDurationField(path+".try_delay", tc.TryDelay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scheduler.WithTryDelay(d))
	}
	if strings.TrimSpace(tc.Timezone) != "" {
		loc, err := config.ParseLocationField(path+".timezone", tc.Timezone)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scheduler.WithLocation(loc))
	}
	return opts, nil
}

func buildRunner(tc config.TaskConfig, stream io.Writer) (runner.Runner, error) {
	switch strings.ToLower(strings.TrimSpace(tc.Type)) {
	case config.TaskTypeCommand:
		return runner.NewCommand(tc.Command, stream)
	case config.TaskTypeFile:
		return runner.NewFile(tc.Path, stream)
	case config.TaskTypeBunch:
		members := make([]runner.Runner, 0, len(tc.Tasks))
		for i, m := range tc.Tasks {
			r, err := buildRunner(m, stream)
			if err != nil {
				return nil, fmt.Errorf("tasks[%d]: %w", i, err)
			}
			members = append(members, r)
		}
		return runner.NewBunch(members...)
	default:
		return nil, fmt.Errorf("unknown task type %q", tc.Type)
	}
}
