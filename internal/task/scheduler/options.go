package scheduler

import (
	"fmt"
	"time"

	"pewcron/internal/task/engine"
)

type taskSettings struct {
	opts engine.Options
	loc  *time.Location
}

// TaskOption adjusts one task at registration.
type TaskOption func(*taskSettings) error

func WithName(name string) TaskOption {
	return func(ts *taskSettings) error {
		n, err := engine.NormalizeName(name)
		if err != nil {
			return err
		}
		ts.opts.Name = n
		return nil
	}
}

func WithDescription(text string) TaskOption {
	return func(ts *taskSettings) error {
		ts.opts.Description = text
		return nil
	}
}

func WithPreventOverlapping(prevent bool) TaskOption {
	return func(ts *taskSettings) error {
		ts.opts.PreventOverlapping = prevent
		return nil
	}
}

func WithLockResetTimeout(minutes int) TaskOption {
	return func(ts *taskSettings) error {
		if minutes < 0 {
			return fmt.Errorf("%w: %d", engine.ErrNegativeTimeout, minutes)
		}
		ts.opts.LockResetTimeout = minutes
		return nil
	}
}

func WithTries(n int) TaskOption {
	return func(ts *taskSettings) error {
		if n < 1 {
			return fmt.Errorf("%w: %d", engine.ErrInvalidTries, n)
		}
		ts.opts.Tries = n
		return nil
	}
}

func WithTryDelay(d time.Duration) TaskOption {
	return func(ts *taskSettings) error {
		if d < 0 {
			return fmt.Errorf("%w: %s", engine.ErrNegativeTryDelay, d)
		}
		ts.opts.TryDelay = d
		return nil
	}
}

// WithLocation overrides the registry timezone for one task.
func WithLocation(loc *time.Location) TaskOption {
	return func(ts *taskSettings) error {
		if loc != nil {
			ts.loc = loc
		}
		return nil
	}
}
