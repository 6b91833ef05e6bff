package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerKind is the normalized kind of a trigger string.
type TriggerKind int

const (
	TriggerCron TriggerKind = iota
	TriggerInterval
)

// TriggerSpec is a parsed trigger string.
//
// Supported forms:
//   - cron: "* * * * *", "*/5 * * * *", "0 * * * * *" (optional seconds), "@hourly", "@every 30s"
//   - interval duration: "1m", "90s"
//   - interval HH:MM: "00:01" (one minute)
//
// "cron:" forces cron parsing; "interval:" or "every:" force interval parsing.
type TriggerSpec struct {
	Kind     TriggerKind
	Cron     string
	Every    time.Duration
	Schedule cron.Schedule
}

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// DefaultTrigger fires once a minute, the resolution of schedule windows.
const DefaultTrigger = "* * * * *"

// ParseTrigger parses raw into a cron schedule or a fixed interval.
func ParseTrigger(raw string) (TriggerSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TriggerSpec{}, fmt.Errorf("trigger required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}

	if spec, err := parseInterval(s); err == nil {
		return spec, nil
	}
	return TriggerSpec{}, fmt.Errorf(
		"invalid trigger %q (use cron like '* * * * *', HH:MM like '00:01', or duration like '1m')", raw)
}

func parseCron(expr string) (TriggerSpec, error) {
	if expr == "" {
		return TriggerSpec{}, fmt.Errorf("cron expression required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return TriggerSpec{Kind: TriggerCron, Cron: expr, Schedule: sched}, nil
}

func parseInterval(v string) (TriggerSpec, error) {
	if v == "" {
		return TriggerSpec{}, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return TriggerSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return TriggerSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or a duration like '1m')", v)
		}
	}
	if d < time.Second {
		return TriggerSpec{}, fmt.Errorf("interval must be at least 1s, got %s", d)
	}
	return TriggerSpec{Kind: TriggerInterval, Every: d, Schedule: cron.Every(d)}, nil
}
