package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"pewcron/internal/task/engine"
	"pewcron/internal/task/runner"
	"pewcron/internal/task/schedule"
	logx "pewcron/pkg/logx"
)

const crashText = "[Scheduler]: ATTENTION: Scheduler crashed. Check the lock status of the task - " +
	"in this situation, the Scheduler cannot release it automatically before Lock Reset Timeout has expired."

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	engine *engine.Engine
	tasks  []*engine.Task
	now    func() time.Time
}

func New(cfg Config, eng *engine.Engine, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Defaults.Tries == 0 {
		cfg.Defaults.Tries = engine.DefaultTries
	}
	return &Service{cfg: cfg, engine: eng, log: log, now: time.Now}
}

// WithLogger returns a view of s sharing its tasks whose invocations log
// through log. Tasks registered on the view are not visible to s.
func (s *Service) WithLogger(log logx.Logger) *Service {
	if log.IsZero() {
		return s
	}
	return &Service{
		log:    log,
		cfg:    s.cfg,
		engine: s.engine.WithLogger(log),
		tasks:  s.Tasks(),
		now:    s.now,
	}
}

// Register adds a task. Its ID is the registration index, which keys the
// launch history; reordering registrations changes which history a task sees.
func (s *Service) Register(r runner.Runner, sched *schedule.Schedule, opts ...TaskOption) (*engine.Task, error) {
	ts := &taskSettings{opts: s.cfg.Defaults, loc: s.cfg.Location}
	ts.opts.Name = ""
	ts.opts.Description = ""
	for _, opt := range opts {
		if err := opt(ts); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := engine.NewTask(len(s.tasks), r, sched, ts.opts)
	if err != nil {
		return nil, err
	}
	t.Location = ts.loc
	s.tasks = append(s.tasks, t)
	return t, nil
}

// Tasks returns the registered tasks in registration order.
func (s *Service) Tasks() []*engine.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Task(nil), s.tasks...)
}

// Task returns the task with the given id.
func (s *Service) Task(id int) (*engine.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.tasks) {
		return nil, false
	}
	return s.tasks[id], true
}

// Run dispatches every task once. A task that cannot be dispatched is logged
// and skipped; its siblings still run. A panic escaping the engine is logged
// with crashText and re-raised.
func (s *Service) Run(ctx context.Context) (report RunReport) {
	tasks := s.Tasks()
	report.Started = s.now()
	s.log.Debug("[Scheduler]: Launching the scheduler", logx.Int("tasks", len(tasks)))

	defer func() {
		if r := recover(); r != nil {
			s.log.Error(crashText,
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			panic(r)
		}
	}()

	tpl := s.engine.Template()
	for _, t := range tasks {
		if ctx.Err() != nil {
			s.log.Debug("[Scheduler]: Interrupted", logx.Err(ctx.Err()))
			break
		}
		res, err := s.engine.Dispatch(ctx, t)
		report.Results = append(report.Results, res)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				break
			}
			report.Errors++
			ref := logx.TaskRef{ID: t.ID, Type: t.Type(), Name: t.Options.Name, Description: t.Options.Description}
			s.log.Error(tpl.Message(ref, tpl.Exception("Can't be started", err)), logx.Int("task_id", t.ID))
		}
	}

	report.Duration = s.now().Sub(report.Started)
	s.log.Debug("[Scheduler]: Completed in "+logx.DiffString(report.Duration),
		logx.Int("launched", report.Launched()),
		logx.Int("failed", report.Failed()),
		logx.Int("errors", report.Errors),
	)
	return report
}

// Validate reports tasks that can never be dispatched.
func (s *Service) Validate() error {
	var errs []error
	for _, t := range s.Tasks() {
		if t.Schedule.Mode() == schedule.ModeUnset {
			errs = append(errs, fmt.Errorf("task %d (%s): %w", t.ID, t.Options.Name, engine.ErrModeUnset))
		}
	}
	return errors.Join(errs...)
}
