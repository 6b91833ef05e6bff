package engine

import "time"

// Observer receives dispatch outcomes, e.g. for metrics. Calls happen on the
// dispatching goroutine.
type Observer interface {
	Decided(t *Task, d Decision)
	Attempted(t *Task, err error, took time.Duration)
	// Finished is called once per launch with nil or the final failure.
	Finished(t *Task, err error)
}

type nopObserver struct{}

func (nopObserver) Decided(*Task, Decision)                {}
func (nopObserver) Attempted(*Task, error, time.Duration) {}
func (nopObserver) Finished(*Task, error)                 {}
