package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// runProcess runs name with args, stdout and stderr merged. When stream is
// non-nil the output is copied there as it arrives.
func runProcess(ctx context.Context, stream io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	// Children of sh may hold the output pipe after sh is killed.
	cmd.WaitDelay = time.Second
	var out bytes.Buffer
	var w io.Writer = &out
	if stream != nil {
		w = io.MultiWriter(&out, stream)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{ExitCode: exitErr.ExitCode(), Message: lastLine(out.String())}
	}
	return err
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
