package runner

import (
	"context"
	"errors"
	"reflect"
	"runtime"
)

// Func wraps an in-process function.
type Func struct {
	fn   func(ctx context.Context) error
	name string
}

// NewFunc wraps fn. An empty name is derived from the function symbol.
func NewFunc(name string, fn func(ctx context.Context) error) (*Func, error) {
	if fn == nil {
		return nil, errors.New("func is nil")
	}
	if name == "" {
		name = funcName(fn)
	}
	return &Func{fn: fn, name: name}, nil
}

func (f *Func) Run(ctx context.Context) error { return f.fn(ctx) }
func (f *Func) Name() string                  { return f.name }
func (f *Func) Type() string                  { return TypeClosure }

func funcName(fn any) string {
	if rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); rf != nil {
		return rf.Name()
	}
	return "func"
}
