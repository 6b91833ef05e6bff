package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pewcron/internal/task/schedule"
	logx "pewcron/pkg/logx"
)

const sampleYAML = `
logging:
  level: debug
  console: true
defaults:
  tries: 2
  try_delay: 5s
storage:
  driver: sqlite
  path: ./pewcron.db
  max_launches_per_task: 100
tasks:
  - name: backup
    type: command
    command: /usr/local/bin/backup.sh
    windows: ["02:00-03:00"]
    days_of_week: [1, "fri", Sunday]
    months: [jan, 12]
  - type: bunch
    every: 15
    tasks:
      - type: command
        command: echo one
      - type: file
        path: /opt/jobs/two.sh
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "pewcron.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2, cfg.Defaults.Tries)
	require.NotNil(t, cfg.Defaults.LockResetTimeout)
	assert.Equal(t, DefaultLockResetTimeout, *cfg.Defaults.LockResetTimeout)
	assert.Equal(t, DefaultMinWindowMinutes, cfg.Defaults.MinWindowMinutes)
	assert.Equal(t, DefaultTriggerSpec, cfg.Trigger.Spec)

	require.Len(t, cfg.Tasks, 2)
	assert.Equal(t, Tokens{"1", "fri", "Sunday"}, cfg.Tasks[0].DaysOfWeek)
	assert.Equal(t, Tokens{"jan", "12"}, cfg.Tasks[0].Months)
	require.NotNil(t, cfg.Tasks[1].Every)
	assert.Equal(t, 15, *cfg.Tasks[1].Every)
	assert.Len(t, cfg.Tasks[1].Tasks, 2)

	s, err := schedule.FromSpec(cfg.Tasks[0].ScheduleSpec(), cfg.Defaults.MinWindowMinutes)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 7}, s.DaysOfWeek())
	assert.Equal(t, []int{1, 12}, s.Months())
}

func TestDecodeJSONAndEmptyYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.json", []byte(`{"tasks":[{"type":"command","command":"true","every":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)

	cfg, err = Decode("c.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Tasks)
}

func TestDecodeKeepsLoggingDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yaml", []byte("tasks: []\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Logging.Console)
	assert.True(t, cfg.Logging.Errors.Enabled, "error channel is on unless disabled")
	assert.False(t, cfg.Logging.Debug)

	cfg, err = Decode("c.yaml", []byte("logging: {level: warn}\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Errors.Enabled, "a partial logging section keeps the other defaults")

	cfg, err = Decode("c.yaml", []byte("logging: {console: false, errors: {enabled: false}}\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Logging.Console)
	assert.False(t, cfg.Logging.Errors.Enabled)
}

func TestDecodeRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.yaml", []byte("tasks: []\ntelegram: {token: x}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")

	_, err = Decode("c.json", []byte(`{} {}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing data")

	_, err = Decode("c.yaml", []byte("tasks:\n  - type: command\n    command: x\n    days_of_week: [1.5]\n"))
	require.Error(t, err)
}

func TestValidateReportsFieldPaths(t *testing.T) {
	t.Parallel()
	body := `
logging: {level: loud}
defaults: {tries: -1, try_delay: soon}
storage: {driver: mongo}
http: {enabled: true}
tasks:
  - type: command
  - type: command
    command: x
    windows: ["10:00-10:10"]
    tries: 0
    timezone: Mars/Olympus
  - type: bunch
    tasks:
      - type: bunch
      - type: file
        path: /x
        every: 5
  - type: shell
`
	_, err := Decode("c.yaml", []byte(body))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`logging.level: unknown level "loud"`,
		"defaults.tries: must be >= 1",
		"defaults.try_delay: invalid duration",
		`storage.driver: unknown driver "mongo"`,
		"tasks[0].command: required for type command",
		"tasks[1].windows[0]",
		"tasks[1].tries: must be >= 1",
		"tasks[1].timezone: unknown timezone",
		"tasks[2].tasks[0].type: bunch members cannot be bunches",
		"tasks[2].tasks[1].schedule: bunch members take the schedule of the bunch",
		`tasks[3].type: unknown task type "shell"`,
	} {
		assert.Contains(t, msg, want)
	}
	assert.ErrorIs(t, err, schedule.ErrWindowTooShort)
	assert.NotContains(t, msg, "http.addr", "enabled http gets the default addr")
}

func TestValidateStoragePaths(t *testing.T) {
	t.Parallel()
	for driver, want := range map[string]string{
		"file":   "storage.path: required",
		"sqlite": "storage.path: required",
		"mysql":  "storage.dsn: required",
	} {
		_, err := Decode("c.json", []byte(`{"storage":{"driver":"`+driver+`"}}`))
		require.Error(t, err, driver)
		assert.Contains(t, err.Error(), want)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	v := map[string]any{"task_id": 1, "name": "x"}

	var js bytes.Buffer
	require.NoError(t, Encode(&js, v, "json"))
	assert.Contains(t, js.String(), `"task_id": 1`)

	var ys bytes.Buffer
	require.NoError(t, Encode(&ys, v, "yaml"))
	assert.Contains(t, ys.String(), "task_id: 1")

	require.Error(t, Encode(&ys, v, "toml"))
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, err := Decode("c.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	newCfg, err := Decode("c.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	changed, _, tasks := SummarizeConfigChange(oldCfg, newCfg)
	assert.Empty(t, changed)
	assert.Empty(t, tasks)

	newCfg.Storage.DSN = "secret"
	newCfg.Trigger.Spec = "@every 30s"
	newCfg.Tasks[0].Command = "/bin/true"
	newCfg.Tasks = append(newCfg.Tasks, TaskConfig{Type: "command", Command: "x"})
	changed, _, tasks = SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"storage", "tasks", "trigger"}, changed)
	assert.Equal(t, []string{"#2", "backup"}, tasks)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "pewcron.yaml", "tasks: []\n")
	m := NewConfigManager(path)
	var logs bytes.Buffer
	m.SetLogger(logx.NewWriter(&logs, "debug"))
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Trigger.Spec == "@yearly" {
			return assert.AnError
		}
		return nil
	})
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("trigger: {spec: '@yearly'}\n"), 0o644))
	time.Sleep(600 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("rejected config was published")
	default:
	}
	require.NoError(t, os.WriteFile(path, []byte("storage: {driver: bogus}\n"), 0o644))
	time.Sleep(600 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("trigger: {spec: '@hourly'}\n"), 0o644))
	select {
	case cfg := <-ch:
		assert.Equal(t, "@hourly", cfg.Trigger.Spec)
		assert.Same(t, cfg, m.Get())
	case <-time.After(5 * time.Second):
		t.Fatal("config was not published")
	}

	cancel()
	<-done
	out := logs.String()
	assert.True(t, strings.Contains(out, "config rejected"), out)
	assert.True(t, strings.Contains(out, "config parse failed"), out)
}
