package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed         = errors.New("storage closed")
	ErrLaunchNotFound = errors.New("launch not found")
)

// ResetLockText is written to a launch whose lock was reset by timeout.
const ResetLockText = "The task ran for too long and was reset by timeout"

// Config configures storage.
//
// Driver values:
//   - "" or "memory": in-process maps
//   - "file": snapshot + journal next to Path
//   - "sqlite": SQLite database file at Path
//   - "mysql": DSN in the go-sql-driver format
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means driver default

	// MaxLaunchesPerTask keeps only the newest N launches per task; 0 keeps all.
	MaxLaunchesPerTask int

	// Clock stamps every write; nil means time.Now.
	Clock func() time.Time
}

func (c Config) now() func() time.Time {
	if c.Clock != nil {
		return c.Clock
	}
	return time.Now
}

// Launch is one execution lineage of a task. Retries restart the same launch.
type Launch struct {
	ID         int64      `json:"id"`
	TaskID     int        `json:"task_id"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	IsWorking  bool       `json:"is_working"`
	ErrorCount int        `json:"error_count"`
	ErrorText  string     `json:"error_text,omitempty"`
}

// Runtime returns how long the launch has been (or was) running at now.
func (l Launch) Runtime(now time.Time) time.Duration {
	if l.EndTime != nil {
		return l.EndTime.Sub(l.StartTime)
	}
	return now.Sub(l.StartTime)
}

// TaskRecord is the stored identity of a registered task.
type TaskRecord struct {
	ID           int       `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	LastActivity time.Time `json:"last_activity"`
}

func (t TaskRecord) sameIdentity(o TaskRecord) bool {
	return t.Type == o.Type && t.Name == o.Name && t.Description == o.Description
}

// LaunchHistory is the persistence port of the dispatch engine.
type LaunchHistory interface {
	// LastLaunch returns the newest launch of the task, or nil when the task
	// was never seen or its (type, name, description) changed. A changed
	// identity is stored so the next call compares against it.
	LastLaunch(ctx context.Context, taskID int, taskType, name, description string) (*Launch, error)
	StartNewLaunch(ctx context.Context, taskID int) (int64, error)
	RestartExistingLaunch(ctx context.Context, id int64) (int64, error)
	CompleteLaunchSuccessfully(ctx context.Context, id int64) error
	// CompleteLaunchUnsuccessfully returns the launch error count after the increment.
	CompleteLaunchUnsuccessfully(ctx context.Context, id int64, text string) (int, error)
	ResetLock(ctx context.Context, id int64) error
	Close() error
}

// HistoryReader exposes stored history for diagnostics.
type HistoryReader interface {
	Tasks(ctx context.Context) ([]TaskRecord, error)
	// Launches returns the newest launches first; limit <= 0 returns all.
	Launches(ctx context.Context, taskID int, limit int) ([]Launch, error)
}

// Store is what Open returns.
type Store interface {
	LaunchHistory
	HistoryReader
}
