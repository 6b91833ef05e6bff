package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Dispatcher is implemented by user job types.
type Dispatcher interface {
	Dispatch(ctx context.Context) error
}

// Job runs a Dispatcher and is named after its Go type.
type Job struct {
	d    Dispatcher
	name string
}

func NewJob(d Dispatcher) (*Job, error) {
	if d == nil {
		return nil, errors.New("job is nil")
	}
	return &Job{d: d, name: strings.TrimPrefix(fmt.Sprintf("%T", d), "*")}, nil
}

func (j *Job) Run(ctx context.Context) error { return j.d.Dispatch(ctx) }
func (j *Job) Name() string                  { return j.name }
func (j *Job) Type() string                  { return TypeJob }
