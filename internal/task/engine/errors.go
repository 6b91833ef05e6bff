package engine

import (
	"errors"
	"fmt"
)

var (
	ErrModeUnset        = errors.New("has no repeat mode configured; use every, delay or any interval")
	ErrEmptyName        = errors.New("task name can't be empty")
	ErrInvalidTries     = errors.New("the number of attempts must be greater than zero")
	ErrNegativeTimeout  = errors.New("lock reset timeout must be >= 0 minutes")
	ErrNegativeTryDelay = errors.New("delay before a new try must be >= 0")
	ErrNoRunner         = errors.New("task has no runner")
)

// FailureError is the final outcome of a launch whose attempts were all used
// up. Text is the rendered exception report.
type FailureError struct {
	Attempts int
	Text     string
	Err      error
}

func (e *FailureError) Error() string { return e.Text }
func (e *FailureError) Unwrap() error { return e.Err }

// PanicError is a recovered panic from a task body.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string      { return fmt.Sprintf("panic: %v", e.Value) }
func (e *PanicError) StackTrace() string { return e.Stack }
