package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File executes a script or binary from disk. Files without an execute bit
// are passed to sh.
type File struct {
	path   string
	stream io.Writer
}

// NewFile validates that path names an existing regular file.
func NewFile(path string, stream io.Writer) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%s is not a runnable file: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a runnable file", path)
	}
	return &File{path: abs, stream: stream}, nil
}

func (f *File) Run(ctx context.Context) error {
	fi, err := os.Stat(f.path)
	if err != nil {
		return err
	}
	if fi.Mode().Perm()&0o111 != 0 {
		return runProcess(ctx, f.stream, f.path)
	}
	return runProcess(ctx, f.stream, "sh", f.path)
}

func (f *File) Name() string { return f.path }
func (f *File) Type() string { return TypeFile }
