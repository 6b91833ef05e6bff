// Package runner holds the task bodies the dispatch engine can execute.
package runner

import (
	"context"
	"fmt"
)

// Task type names, as stored in launch history and shown in logs.
const (
	TypeCommand = "command"
	TypeClosure = "closure"
	TypeFile    = "file"
	TypeJob     = "job"
	TypeBunch   = "bunch"
)

// Runner is a task body. Run returns nil on success; any error is a failed attempt.
type Runner interface {
	Run(ctx context.Context) error
	Name() string
	Type() string
}

// ExitError is returned by process-backed runners on a non-zero exit.
type ExitError struct {
	ExitCode int
	Message  string // last line of output
}

func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return e.Message
}

// Code reports the process exit code to the exception template.
func (e *ExitError) Code() int { return e.ExitCode }
