package runner

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Command runs a shell command line through sh with stderr folded into stdout.
type Command struct {
	line   string
	stream io.Writer
}

// NewCommand returns a Command runner. When stream is non-nil the command
// output is copied there while it runs.
func NewCommand(line string, stream io.Writer) (*Command, error) {
	if strings.TrimSpace(line) == "" {
		return nil, errors.New("command is empty")
	}
	return &Command{line: line, stream: stream}, nil
}

func (c *Command) Run(ctx context.Context) error {
	return runProcess(ctx, c.stream, "sh", "-c", "("+c.line+") 2>&1")
}

func (c *Command) Name() string { return c.line }
func (c *Command) Type() string { return TypeCommand }
