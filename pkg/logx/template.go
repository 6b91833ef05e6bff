package logx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMessageFormat   = "[{{task_id}}. {{TASK_TYPE}} '{{task_name}}']: {{message}}"
	DefaultExceptionFormat = "{{header}}\n[code]: {{code}}\n[class]: {{class}}\n[message]: {{message}}\n[stacktrace]:\n{{stacktrace}}"
)

// TaskRef identifies a task inside a formatted log line.
type TaskRef struct {
	ID          int
	Type        string
	Name        string
	Description string
}

// Template renders task log lines and failure reports.
//
// Message placeholders: {{task_id}}, {{task_type}}, {{task_name}}, {{message}},
// {{task_description}}. The upper-case spelling of a placeholder inserts the
// upper-cased value.
//
// Exception placeholders: {{header}}, {{code}}, {{class}}, {{message}}, {{stacktrace}}.
//
// Max lengths are applied independently; 0 disables truncation.
type Template struct {
	MessageFormat      string
	ExceptionFormat    string
	MaxMessageLength   int
	MaxExceptionLength int
}

// Coder is implemented by errors that carry a numeric code (exit status, driver code).
type Coder interface {
	Code() int
}

// StackTracer is implemented by errors that captured a stack trace.
type StackTracer interface {
	StackTrace() string
}

func (t Template) withDefaults() Template {
	if strings.TrimSpace(t.MessageFormat) == "" {
		t.MessageFormat = DefaultMessageFormat
	}
	if strings.TrimSpace(t.ExceptionFormat) == "" {
		t.ExceptionFormat = DefaultExceptionFormat
	}
	return t
}

// Message renders msg for task through the message template.
func (t Template) Message(task TaskRef, msg string) string {
	t = t.withDefaults()
	id := strconv.Itoa(task.ID)
	r := strings.NewReplacer(
		"{{task_id}}", id,
		"{{TASK_ID}}", id,
		"{{task_type}}", task.Type,
		"{{TASK_TYPE}}", strings.ToUpper(task.Type),
		"{{task_name}}", task.Name,
		"{{TASK_NAME}}", strings.ToUpper(task.Name),
		"{{message}}", msg,
		"{{MESSAGE}}", strings.ToUpper(msg),
		"{{task_description}}", task.Description,
		"{{TASK_DESCRIPTION}}", strings.ToUpper(task.Description),
	)
	return truncate(r.Replace(t.MessageFormat), t.MaxMessageLength)
}

// Exception renders err under header through the exception template.
func (t Template) Exception(header string, err error) string {
	t = t.withDefaults()
	code, class, msg, stack := "0", "<nil>", "", ""
	if err != nil {
		class = fmt.Sprintf("%T", err)
		msg = err.Error()
		var c Coder
		if errors.As(err, &c) {
			code = strconv.Itoa(c.Code())
		}
		var st StackTracer
		if errors.As(err, &st) {
			stack = st.StackTrace()
		}
	}
	if stack == "" {
		stack = "(no stack trace)"
	}
	r := strings.NewReplacer(
		"{{header}}", header,
		"{{code}}", code,
		"{{class}}", class,
		"{{message}}", msg,
		"{{stacktrace}}", stack,
	)
	return truncate(r.Replace(t.ExceptionFormat), t.MaxExceptionLength)
}

// DiffString renders an elapsed duration the way run summaries print it:
// "1h 02m 03s", "02m 03s" or "03s".
func DiffString(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%02dm %02ds", m, s)
	default:
		return fmt.Sprintf("%02ds", s)
	}
}
