package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pewcron/internal/storage"
	"pewcron/internal/task/runner"
	"pewcron/internal/task/schedule"
	logx "pewcron/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock  *fakeClock
	store  storage.Store
	eng    *Engine
	logs   *bytes.Buffer
	sleeps []time.Duration
}

// 2024-01-01 is a Monday.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{t: time.Date(2024, time.January, 1, 10, 5, 0, 0, time.UTC)},
		logs:  &bytes.Buffer{},
	}
	h.store = storage.NewMemory(storage.Config{Clock: h.clock.Now})
	t.Cleanup(func() { _ = h.store.Close() })
	h.eng = New(h.store, logx.NewWriter(h.logs, "debug"),
		WithClock(h.clock.Now),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	)
	return h
}

type counter struct {
	calls int
	fn    func(call int) error
}

func (c *counter) runner(t *testing.T, name string) runner.Runner {
	t.Helper()
	r, err := runner.NewFunc(name, func(context.Context) error {
		c.calls++
		if c.fn == nil {
			return nil
		}
		return c.fn(c.calls)
	})
	require.NoError(t, err)
	return r
}

func newTask(t *testing.T, r runner.Runner, opts Options, build func(b *schedule.Builder)) *Task {
	t.Helper()
	b := schedule.NewBuilder(30)
	if build != nil {
		build(b)
	}
	if opts.Tries == 0 {
		opts.Tries = 1
	}
	task, err := NewTask(0, r, b.Build(), opts)
	require.NoError(t, err)
	task.Location = time.UTC
	return task
}

func every(t *testing.T, min int) func(b *schedule.Builder) {
	return func(b *schedule.Builder) { require.NoError(t, b.Every(min)) }
}

// seedWorking registers task in the store and opens a launch that is still working.
func (h *harness) seedWorking(t *testing.T, task *Task) int64 {
	t.Helper()
	ctx := context.Background()
	_, err := h.store.LastLaunch(ctx, task.ID, task.Type(), task.Options.Name, task.Options.Description)
	require.NoError(t, err)
	id, err := h.store.StartNewLaunch(ctx, task.ID)
	require.NoError(t, err)
	return id
}

func (h *harness) launch(t *testing.T, id int64) storage.Launch {
	t.Helper()
	all, err := h.store.Launches(context.Background(), 0, 0)
	require.NoError(t, err)
	for _, l := range all {
		if l.ID == id {
			return l
		}
	}
	t.Fatalf("launch %d not found", id)
	return storage.Launch{}
}

func TestDispatchModeUnset(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "noop"), Options{}, nil)

	res, err := h.eng.Dispatch(context.Background(), task)
	require.ErrorIs(t, err, ErrModeUnset)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Zero(t, c.calls)
}

func TestDispatchOutsideWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "noop"), Options{}, func(b *schedule.Builder) {
		require.NoError(t, b.AddWindow("12:00", "13:00"))
	})

	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Zero(t, c.calls)

	tasks, err := h.store.Tasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks, "history is not touched outside the window")
}

func TestDispatchEveryRespectsPeriod(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "tick"), Options{}, every(t, 5))
	ctx := context.Background()

	res, err := h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionLaunch, res.Decision)
	assert.Equal(t, 1, c.calls)

	h.clock.Advance(4*time.Minute + 59*time.Second)
	res, err = h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Contains(t, res.Reason, "(4/5 min). Wait 1 min.")
	assert.Equal(t, 1, c.calls)

	h.clock.Advance(time.Second)
	res, err = h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionLaunch, res.Decision)
	assert.Equal(t, 2, c.calls)
}

func TestDispatchSingleOncePerWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "daily"), Options{}, func(b *schedule.Builder) {
		require.NoError(t, b.AddWindow("10:00", "11:00"))
		require.NoError(t, b.DaysOfWeek("mon", "tue"))
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.eng.Dispatch(ctx, task)
		require.NoError(t, err)
		h.clock.Advance(10 * time.Minute)
	}
	assert.Equal(t, 1, c.calls, "same identity launches once")

	h.clock.Advance(24 * time.Hour)
	res, err := h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionLaunch, res.Decision)
	assert.Equal(t, 2, c.calls, "next day is a new identity")
}

func TestDispatchStaleLockResetIgnoresPreventOverlapping(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "slow"), Options{PreventOverlapping: true, LockResetTimeout: 60}, every(t, 5))
	stale := h.seedWorking(t, task)

	h.clock.Advance(61 * time.Minute)
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionStaleReset, res.Decision)
	assert.Equal(t, 1, c.calls)
	assert.NotEqual(t, stale, res.LaunchID)

	old := h.launch(t, stale)
	assert.False(t, old.IsWorking)
	assert.Equal(t, 1, old.ErrorCount)
	assert.Equal(t, storage.ResetLockText, old.ErrorText)
	assert.Contains(t, h.logs.String(), `"level":"warn"`)
	assert.Contains(t, h.logs.String(), "bigger than the reset timeout (60 min). Reset lock")
}

func TestDispatchPreventOverlappingKeepsWorking(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "slow"), Options{PreventOverlapping: true, LockResetTimeout: 60}, every(t, 5))
	running := h.seedWorking(t, task)

	h.clock.Advance(10 * time.Minute)
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Contains(t, res.Reason, "overlap is not allowed")
	assert.Zero(t, c.calls)
	assert.True(t, h.launch(t, running).IsWorking)
}

func TestDispatchEveryOverlapResetsPreviousLock(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "slow"), Options{LockResetTimeout: 60}, every(t, 5))
	running := h.seedWorking(t, task)

	h.clock.Advance(10 * time.Minute)
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionResetAndLaunch, res.Decision)
	assert.Equal(t, 1, c.calls)

	prev := h.launch(t, running)
	assert.False(t, prev.IsWorking, "only one launch stays marked working")
	assert.Equal(t, storage.ResetLockText, prev.ErrorText)
}

func TestDispatchSingleOverlapAcrossWindows(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "twice"), Options{LockResetTimeout: 2000}, func(b *schedule.Builder) {
		require.NoError(t, b.AddWindow("10:00", "11:00"))
		require.NoError(t, b.AddWindow("12:00", "13:00"))
	})
	h.seedWorking(t, task)

	h.clock.Advance(2 * time.Hour)
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionResetAndLaunch, res.Decision)
	assert.Equal(t, "Was started in the previous time interval. Reset lock and start overlapping", res.Reason)
}

func TestDispatchDelayWaitsAfterEnd(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "after"), Options{}, func(b *schedule.Builder) {
		require.NoError(t, b.Delay(30))
	})
	ctx := context.Background()
	id := h.seedWorking(t, task)
	require.NoError(t, h.store.CompleteLaunchSuccessfully(ctx, id))

	h.clock.Advance(20 * time.Minute)
	res, err := h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Zero(t, c.calls)

	h.clock.Advance(11 * time.Minute)
	res, err = h.eng.Dispatch(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, DecisionLaunch, res.Decision)
	assert.Equal(t, 1, c.calls)
}

func TestDispatchDelayNeverOverlaps(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "after"), Options{LockResetTimeout: 60}, func(b *schedule.Builder) {
		require.NoError(t, b.Delay(1))
	})
	h.seedWorking(t, task)

	h.clock.Advance(30 * time.Minute)
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionSkip, res.Decision)
	assert.Contains(t, res.Reason, "DELAY mode can't overlap")
	assert.Contains(t, res.Reason, "(30 min)")
}

func TestDispatchIdentityChangeStartsOver(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "job"), Options{Description: "old", PreventOverlapping: true}, every(t, 5))
	h.seedWorking(t, task)

	task.Options.Description = "new"
	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, DecisionLaunch, res.Decision)
	assert.Equal(t, "Hasn't started before or has been changed", res.Reason)
	assert.Equal(t, 1, c.calls)
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	boom := errors.New("boom")
	c := &counter{fn: func(int) error { return boom }}
	task := newTask(t, c.runner(t, "flaky"), Options{Tries: 3, TryDelay: 2 * time.Second}, every(t, 5))

	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err, "task failures are not dispatch errors")
	assert.Equal(t, 3, c.calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeps)

	var fe *FailureError
	require.ErrorAs(t, res.Err, &fe)
	require.ErrorIs(t, res.Err, boom)
	assert.True(t, strings.HasPrefix(fe.Text, "Failed in "), fe.Text)

	l := h.launch(t, res.LaunchID)
	assert.Equal(t, 3, l.ErrorCount)
	assert.False(t, l.IsWorking)
	assert.Contains(t, l.ErrorText, "Failed (try 3/3) in ")
	assert.Contains(t, l.ErrorText, "[message]: boom")

	out := h.logs.String()
	assert.Contains(t, out, "Launched (try 1/3)")
	assert.Contains(t, out, "Restarted (try 2/3)")
	assert.Contains(t, out, "Restarted (try 3/3)")
	assert.Contains(t, out, `"level":"error"`)
}

func TestRetrySucceedsOnSecondTry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{fn: func(call int) error {
		if call == 1 {
			return &runner.ExitError{ExitCode: 2, Message: "try again"}
		}
		return nil
	}}
	task := newTask(t, c.runner(t, "flaky"), Options{Tries: 5}, every(t, 5))

	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, h.sleeps, 1)

	l := h.launch(t, res.LaunchID)
	assert.Zero(t, l.ErrorCount, "success clears the error count")
	assert.Contains(t, h.logs.String(), "[code]: 2")
	assert.Contains(t, h.logs.String(), "Completed in 00s")
}

func TestPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{fn: func(int) error { panic("kaboom") }}
	task := newTask(t, c.runner(t, "panicky"), Options{}, every(t, 5))

	res, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	var pe *PanicError
	require.ErrorAs(t, res.Err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	l := h.launch(t, res.LaunchID)
	assert.Contains(t, l.ErrorText, "[message]: panic: kaboom")
	assert.Contains(t, l.ErrorText, "engine.(*Engine).run")
}

func TestRetrySleepHonorsCancellation(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)}
	store := storage.NewMemory(storage.Config{Clock: clock.Now})
	defer store.Close()
	eng := New(store, logx.Nop(), WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	c := &counter{fn: func(int) error {
		cancel()
		return errors.New("stop")
	}}
	task := newTask(t, c.runner(t, "x"), Options{Tries: 3, TryDelay: time.Hour}, every(t, 5))

	res, err := eng.Dispatch(ctx, task)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, c.calls)

	launches, err := store.Launches(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, launches, 1)
	assert.Equal(t, 1, launches[0].ErrorCount, "the failed attempt is still recorded")
}

func TestDebugLinesUseMessageTemplate(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &counter{}
	task := newTask(t, c.runner(t, "report"), Options{}, every(t, 5))

	_, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	out := h.logs.String()
	assert.Contains(t, out, "[0. CLOSURE 'report']: Checking if it's time to start")
	assert.Contains(t, out, "[0. CLOSURE 'report']: Launched (try 1/1)")
}

func TestObserverSeesOutcomes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	obs := &recordingObserver{}
	h.eng = New(h.store, logx.Nop(), WithClock(h.clock.Now), WithObserver(obs),
		WithSleeper(func(context.Context, time.Duration) error { return nil }))
	c := &counter{fn: func(call int) error {
		if call == 1 {
			return errors.New("first")
		}
		return nil
	}}
	task := newTask(t, c.runner(t, "obs"), Options{Tries: 2}, every(t, 5))

	_, err := h.eng.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, []Decision{DecisionLaunch}, obs.decisions)
	assert.Equal(t, 2, obs.attempts)
	assert.Equal(t, 1, obs.failedAttempts)
	assert.Equal(t, 1, obs.finished)
}

type recordingObserver struct {
	decisions      []Decision
	attempts       int
	failedAttempts int
	finished       int
}

func (o *recordingObserver) Decided(_ *Task, d Decision) { o.decisions = append(o.decisions, d) }
func (o *recordingObserver) Attempted(_ *Task, err error, _ time.Duration) {
	o.attempts++
	if err != nil {
		o.failedAttempts++
	}
}
func (o *recordingObserver) Finished(*Task, error) { o.finished++ }

func TestElapsedMinutesTruncates(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, elapsedMinutes(base.Add(59*time.Second), base))
	assert.Equal(t, 1, elapsedMinutes(base.Add(119*time.Second), base))
	assert.Equal(t, 2, elapsedMinutes(base, base.Add(2*time.Minute)))
}
