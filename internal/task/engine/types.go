package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pewcron/internal/task/runner"
	"pewcron/internal/task/schedule"
	logx "pewcron/pkg/logx"
)

const (
	MaxNameLength           = 128
	nameTruncateMark        = "(...)"
	DefaultLockResetTimeout = 360
	DefaultTries            = 1
)

// Options are the per-task runtime settings.
type Options struct {
	Name               string
	Description        string
	PreventOverlapping bool
	LockResetTimeout   int // minutes
	Tries              int
	TryDelay           time.Duration
}

// DefaultOptions returns the settings a task gets when nothing is configured.
func DefaultOptions() Options {
	return Options{LockResetTimeout: DefaultLockResetTimeout, Tries: DefaultTries}
}

// Validate reports the first invalid field.
func (o Options) Validate() error {
	switch {
	case strings.TrimSpace(o.Name) == "":
		return ErrEmptyName
	case o.Tries < 1:
		return fmt.Errorf("%w: %d", ErrInvalidTries, o.Tries)
	case o.LockResetTimeout < 0:
		return fmt.Errorf("%w: %d", ErrNegativeTimeout, o.LockResetTimeout)
	case o.TryDelay < 0:
		return fmt.Errorf("%w: %s", ErrNegativeTryDelay, o.TryDelay)
	}
	return nil
}

// NormalizeName trims name, rejects an empty result and shortens names over
// MaxNameLength bytes to at most MaxNameLength with a "(...)" suffix. The cut
// never splits a UTF-8 sequence.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > MaxNameLength {
		cut := MaxNameLength - len(nameTruncateMark)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + nameTruncateMark
	}
	return name, nil
}

// Task binds a runner to its schedule and options. ID is the registration
// index and keys the launch history.
type Task struct {
	ID       int
	Runner   runner.Runner
	Schedule *schedule.Schedule
	Options  Options
	Location *time.Location // nil means time.Local
}

// NewTask validates opts and fills the name from the runner when empty.
func NewTask(id int, r runner.Runner, s *schedule.Schedule, opts Options) (*Task, error) {
	if r == nil {
		return nil, ErrNoRunner
	}
	if s == nil {
		s = &schedule.Schedule{}
	}
	if opts.Name == "" {
		opts.Name = r.Name()
	}
	name, err := NormalizeName(opts.Name)
	if err != nil {
		return nil, err
	}
	opts.Name = name
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Task{ID: id, Runner: r, Schedule: s, Options: opts}, nil
}

func (t *Task) Type() string { return t.Runner.Type() }

// Ref identifies t in formatted log lines.
func (t *Task) Ref() logx.TaskRef {
	return logx.TaskRef{ID: t.ID, Type: t.Type(), Name: t.Options.Name, Description: t.Options.Description}
}

func (t *Task) location() *time.Location {
	if t.Location != nil {
		return t.Location
	}
	return time.Local
}

// Decision is what one dispatch decided for a task.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionLaunch
	DecisionResetAndLaunch // overlap allowed: previous lock released
	DecisionStaleReset     // previous launch exceeded the lock reset timeout
)

func (d Decision) String() string {
	switch d {
	case DecisionSkip:
		return "skip"
	case DecisionLaunch:
		return "launch"
	case DecisionResetAndLaunch:
		return "reset_and_launch"
	case DecisionStaleReset:
		return "stale_reset"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Launched reports whether the decision started the task body.
func (d Decision) Launched() bool { return d != DecisionSkip }

// Result summarizes one dispatch. Err is the final task failure, if any; it
// is never returned as the Dispatch error.
type Result struct {
	TaskID   int
	Decision Decision
	Reason   string
	LaunchID int64
	Attempts int
	Err      error
}
