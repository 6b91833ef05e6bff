package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Defaults DefaultsConfig `json:"defaults"`
	Storage  StorageConfig  `json:"storage"`
	Trigger  TriggerConfig  `json:"trigger"`
	HTTP     HTTPConfig     `json:"http"`
	Metrics  MetricsConfig  `json:"metrics"`
	Tasks    []TaskConfig   `json:"tasks"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// Debug turns on the debug channel regardless of level.
	Debug  bool          `json:"debug"`
	File   LoggingFile   `json:"file"`
	Errors LoggingErrors `json:"errors"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingErrors is the error channel: warn and error records duplicated to
// stderr, or to Path when set.
type LoggingErrors struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// DefaultsConfig seeds every task; task entries override field by field.
//
// Defaults (when omitted):
//   - lock_reset_timeout: 360 (minutes)
//   - tries: 1
//   - try_delay: "0s"
//   - min_window_minutes: 30
type DefaultsConfig struct {
	PreventOverlapping bool   `json:"prevent_overlapping"`
	LockResetTimeout   *int   `json:"lock_reset_timeout,omitempty"`
	Tries              int    `json:"tries,omitempty"`
	TryDelay           string `json:"try_delay,omitempty"`
	MinWindowMinutes   int    `json:"min_window_minutes,omitempty"`
	// CommandOutput streams command and file task output to stdout.
	CommandOutput bool `json:"command_output"`

	LogMessageFormat    string `json:"log_message_format,omitempty"`
	LogExceptionFormat  string `json:"log_exception_format,omitempty"`
	MaxLogMessageLength int    `json:"max_log_message_length,omitempty"`
	MaxExceptionLength  int    `json:"max_exception_length,omitempty"`
}

// StorageConfig selects the launch history backend.
//
// Example:
//
//	storage: { driver: sqlite, path: ./pewcron.db, max_launches_per_task: 500 }
type StorageConfig struct {
	Driver             string `json:"driver"`
	Path               string `json:"path,omitempty"`
	DSN                string `json:"dsn,omitempty"`          // mysql; never logged
	BusyTimeout        string `json:"busy_timeout,omitempty"` // sqlite
	MaxLaunchesPerTask int    `json:"max_launches_per_task,omitempty"`
}

// TriggerConfig drives `pewcron loop`.
type TriggerConfig struct {
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type TaskConfig struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Command     string `json:"command,omitempty"`
	Path        string `json:"path,omitempty"`
	// Tasks are the members of a bunch; they carry no schedule of their own.
	Tasks []TaskConfig `json:"tasks,omitempty"`

	Every       *int     `json:"every,omitempty"`
	Delay       *int     `json:"delay,omitempty"`
	Windows     []string `json:"windows,omitempty"`
	DaysOfWeek  Tokens   `json:"days_of_week,omitempty"`
	DaysOfMonth []int    `json:"days_of_month,omitempty"`
	Months      Tokens   `json:"months,omitempty"`
	Years       []int    `json:"years,omitempty"`

	PreventOverlapping *bool  `json:"prevent_overlapping,omitempty"`
	LockResetTimeout   *int   `json:"lock_reset_timeout,omitempty"`
	Tries              *int   `json:"tries,omitempty"`
	TryDelay           string `json:"try_delay,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
}

// Tokens is a list that accepts numbers and names alike, e.g. [1, "tue", "Sunday"].
type Tokens []string

func (t *Tokens) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Tokens, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return fmt.Errorf("[%d]: want a number or a name, got %s", i, item)
		}
		v, err := n.Int64()
		if err != nil {
			return fmt.Errorf("[%d]: want an integer, got %s", i, n)
		}
		out = append(out, strconv.FormatInt(v, 10))
	}
	*t = out
	return nil
}
