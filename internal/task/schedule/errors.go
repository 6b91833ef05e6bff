package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTime       = errors.New("invalid time of day")
	ErrWindowOrder       = errors.New("window start must be before its end")
	ErrWindowTooShort    = errors.New("window shorter than the configured minimum")
	ErrWindowOverlap     = errors.New("windows overlap")
	ErrModeConflict      = errors.New("every and delay modes are mutually exclusive")
	ErrNegativePeriod    = errors.New("period must be >= 0 minutes")
	ErrInvalidDayOfWeek  = errors.New("invalid day of week")
	ErrInvalidDayOfMonth = errors.New("invalid day of month")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidYear       = errors.New("invalid year")
)

// Error is a schedule configuration error. Kind is one of the Err* sentinels
// and is what errors.Is matches against.
type Error struct {
	Kind   error
	Value  string
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Value != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Value)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, value, detail string) *Error {
	return &Error{Kind: kind, Value: value, Detail: detail}
}
