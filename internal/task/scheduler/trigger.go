package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "pewcron/pkg/logx"
)

// Trigger calls run on a cron schedule. A tick that arrives while the
// previous run is still going is skipped.
type Trigger struct {
	mu sync.Mutex

	log  logx.Logger
	spec TriggerSpec
	loc  *time.Location
	run  func(ctx context.Context)

	c      *cron.Cron
	cancel context.CancelFunc
}

func NewTrigger(raw string, loc *time.Location, run func(ctx context.Context), log logx.Logger) (*Trigger, error) {
	if run == nil {
		return nil, fmt.Errorf("trigger: run func required")
	}
	spec, err := ParseTrigger(raw)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{log: log, spec: spec, loc: loc, run: run}, nil
}

func (t *Trigger) Spec() TriggerSpec { return t.spec }

// Start begins triggering. Runs receive a context derived from ctx that is
// cancelled by Stop once its grace period ends.
func (t *Trigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	cl := cronLogger{log: t.log}
	t.c = cron.New(
		cron.WithLocation(t.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	t.c.Schedule(t.spec.Schedule, cron.FuncJob(func() { t.run(runCtx) }))
	t.c.Start()
	t.log.Info("trigger started", logx.String("tz", t.loc.String()), logx.Time("next", t.spec.Schedule.Next(time.Now().In(t.loc))))
}

// Stop halts triggering and waits for an in-flight run until ctx is done.
func (t *Trigger) Stop(ctx context.Context) {
	start := time.Now()
	t.mu.Lock()
	c, cancel := t.c, t.cancel
	t.c, t.cancel = nil, nil
	t.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		t.log.Warn("trigger stop timed out; cancelling in-flight run")
	}
	cancel()
	t.log.Info("trigger stopped", logx.Duration("took", time.Since(start)))
}

// cronLogger routes robfig/cron's logging through logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
