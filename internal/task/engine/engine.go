package engine

import (
	"context"
	"fmt"
	"time"

	"pewcron/internal/storage"
	"pewcron/internal/task/schedule"
	logx "pewcron/pkg/logx"
)

// Engine decides, per invocation, whether a task runs now and drives the
// launch through the history port. It holds no timers between invocations.
type Engine struct {
	history storage.LaunchHistory
	log     logx.Logger
	tpl     logx.Template
	obs     Observer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleeper replaces the retry delay wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

func WithTemplate(tpl logx.Template) Option {
	return func(e *Engine) { e.tpl = tpl }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.obs = o
		}
	}
}

func New(history storage.LaunchHistory, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		history: history,
		log:     log,
		obs:     nopObserver{},
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithLogger returns a copy of e that logs through log.
func (e *Engine) WithLogger(log logx.Logger) *Engine {
	cp := *e
	if !log.IsZero() {
		cp.log = log
	}
	return &cp
}

// Template returns the formatting template in use.
func (e *Engine) Template() logx.Template { return e.tpl }

// Dispatch runs the decision rules for t once and, when they say so, runs the
// task with retries. The returned error covers configuration and storage
// failures only; task failures are reported in Result.Err.
func (e *Engine) Dispatch(ctx context.Context, t *Task) (Result, error) {
	res := Result{TaskID: t.ID, Decision: DecisionSkip}
	sched := t.Schedule
	if sched.Mode() == schedule.ModeUnset {
		return res, ErrModeUnset
	}

	start := e.now()
	now := start.In(t.location())
	e.debug(t, "Checking if it's time to start")

	if !sched.InWindow(now) {
		res.Reason = "It's not time yet. Wait for an appropriate time interval"
		e.debug(t, res.Reason)
		e.obs.Decided(t, res.Decision)
		return res, nil
	}

	last, err := e.history.LastLaunch(ctx, t.ID, t.Type(), t.Options.Name, t.Options.Description)
	if err != nil {
		return res, fmt.Errorf("last launch: %w", err)
	}

	v := decide(t, last, now)
	for _, note := range v.notes {
		e.debug(t, note)
	}
	res.Decision = v.decision
	res.Reason = v.reason
	e.obs.Decided(t, v.decision)

	switch v.decision {
	case DecisionSkip:
		e.debug(t, v.reason)
		return res, nil
	case DecisionStaleReset:
		e.warn(t, v.reason)
	default:
		e.debug(t, v.reason)
	}
	if v.decision == DecisionStaleReset || v.decision == DecisionResetAndLaunch {
		if err := e.history.ResetLock(ctx, last.ID); err != nil {
			return res, fmt.Errorf("reset lock: %w", err)
		}
	}
	return e.launch(ctx, t, start, res)
}

type verdict struct {
	decision Decision
	reason   string
	notes    []string // logged before reason
}

// decide applies the dispatch rules to a task that is inside its window.
// The first matching rule wins.
func decide(t *Task, last *storage.Launch, now time.Time) verdict {
	sched := t.Schedule
	mode := sched.Mode()
	period := sched.Period()

	if last == nil {
		return verdict{decision: DecisionLaunch, reason: "Hasn't started before or has been changed"}
	}

	if mode == schedule.ModeSingle && sched.SameWindow(now, last.StartTime.In(now.Location())) {
		return verdict{reason: fmt.Sprintf(
			"Last launch was started in the current time interval (%d min ago). Wait for a new time interval",
			elapsedMinutes(now, last.StartTime))}
	}

	if mode == schedule.ModeEvery {
		if diff := elapsedMinutes(now, last.StartTime); diff < period {
			return verdict{reason: fmt.Sprintf(
				"Less than the specified delay has passed since the start of the previous launch (%d/%d min). Wait %d min.",
				diff, period, period-diff)}
		}
	}

	if mode == schedule.ModeDelay && last.EndTime != nil {
		if diff := elapsedMinutes(now, *last.EndTime); diff < period {
			return verdict{reason: fmt.Sprintf(
				"Less than the specified delay has passed since the end of the previous launch (%d/%d min). Wait %d min.",
				diff, period, period-diff)}
		}
	}

	if !last.IsWorking {
		return verdict{decision: DecisionLaunch, reason: "The previous launch is completed"}
	}

	runtime := elapsedMinutes(now, last.StartTime)
	timeout := t.Options.LockResetTimeout
	running := fmt.Sprintf("The previous launch is still running (already %d min)", runtime)

	if runtime >= timeout {
		return verdict{
			decision: DecisionStaleReset,
			notes:    []string{running},
			reason:   fmt.Sprintf("The current runtime is bigger than the reset timeout (%d min). Reset lock", timeout),
		}
	}

	if mode == schedule.ModeDelay {
		return verdict{notes: []string{running}, reason: fmt.Sprintf(
			"The current runtime is less then the reset timeout (%d min). DELAY mode can't overlap. "+
				"Waiting for task completion or lock release (%d min)", timeout, timeout-runtime)}
	}

	if t.Options.PreventOverlapping {
		return verdict{notes: []string{running}, reason: fmt.Sprintf(
			"The current runtime is less than the reset timeout (%d min), and overlap is not allowed. Keep working",
			timeout)}
	}

	notes := []string{running, "Overlap allowed"}
	if mode == schedule.ModeSingle {
		return verdict{
			decision: DecisionResetAndLaunch,
			notes:    notes,
			reason:   "Was started in the previous time interval. Reset lock and start overlapping",
		}
	}
	return verdict{
		decision: DecisionResetAndLaunch,
		notes:    notes,
		reason: fmt.Sprintf(
			"More than the set delay (%d min) has passed since the start of the last launch (%d min). Reset lock and start overlapping",
			period, runtime),
	}
}

// elapsedMinutes counts whole minutes between a and b, regardless of order.
func elapsedMinutes(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / time.Minute)
}

func (e *Engine) debug(t *Task, msg string) {
	if !e.log.Enabled(logx.LevelDebug) {
		return
	}
	e.log.Debug(e.tpl.Message(t.Ref(), msg), logx.Int("task_id", t.ID))
}

func (e *Engine) warn(t *Task, msg string) {
	e.log.Warn(e.tpl.Message(t.Ref(), msg), logx.Int("task_id", t.ID))
}

func (e *Engine) error(t *Task, msg string) {
	e.log.Error(e.tpl.Message(t.Ref(), msg), logx.Int("task_id", t.ID))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
