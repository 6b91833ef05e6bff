package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "pewcron/pkg/logx"
)

// launch runs the task until it succeeds or the backend error count reaches
// Tries. The first attempt opens a new launch; retries restart it.
func (e *Engine) launch(ctx context.Context, t *Task, start time.Time, res Result) (Result, error) {
	tries := t.Options.Tries
	attempt := 1
	// Outcomes are recorded even when ctx is cancelled mid-attempt.
	wctx := context.WithoutCancel(ctx)
	var id int64
	for {
		var err error
		if id == 0 {
			e.debug(t, fmt.Sprintf("Launched (try %d/%d)", attempt, tries))
			id, err = e.history.StartNewLaunch(ctx, t.ID)
			if err != nil {
				return res, fmt.Errorf("start launch: %w", err)
			}
		} else {
			e.debug(t, fmt.Sprintf("Restarted (try %d/%d)", attempt, tries))
			id, err = e.history.RestartExistingLaunch(ctx, id)
			if err != nil {
				return res, fmt.Errorf("restart launch: %w", err)
			}
		}
		res.LaunchID = id
		res.Attempts++

		began := e.now()
		runErr := e.run(ctx, t)
		e.obs.Attempted(t, runErr, e.now().Sub(began))

		if runErr == nil {
			if err := e.history.CompleteLaunchSuccessfully(wctx, id); err != nil {
				return res, fmt.Errorf("complete launch: %w", err)
			}
			e.debug(t, "Completed in "+logx.DiffString(e.now().Sub(start)))
			e.obs.Finished(t, nil)
			return res, nil
		}

		header := fmt.Sprintf("Failed (try %d/%d) in %s", attempt, tries, logx.DiffString(e.now().Sub(start)))
		text := e.tpl.Exception(header, runErr)
		errs, err := e.history.CompleteLaunchUnsuccessfully(wctx, id, text)
		if err != nil {
			return res, fmt.Errorf("complete launch: %w", err)
		}

		if errs < tries && res.Attempts < tries {
			e.debug(t, text)
			if err := e.sleep(ctx, t.Options.TryDelay); err != nil {
				res.Err = runErr
				return res, fmt.Errorf("retry aborted: %w", err)
			}
			attempt = errs + 1
			continue
		}

		final := e.tpl.Exception("Failed in "+logx.DiffString(e.now().Sub(start)), runErr)
		e.error(t, final)
		res.Err = &FailureError{Attempts: res.Attempts, Text: final, Err: runErr}
		e.obs.Finished(t, res.Err)
		return res, nil
	}
}

// run executes the task body, turning a panic into a *PanicError.
func (e *Engine) run(ctx context.Context, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return t.Runner.Run(ctx)
}
