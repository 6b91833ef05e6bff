package config

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	logx "pewcron/pkg/logx"
)

// SummarizeConfigChange returns the changed sections, safe attrs for logging
// (never the mysql DSN), and the names of task entries that were added,
// removed or edited.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.debug", newCfg.Logging.Debug),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.errors_enabled", newCfg.Logging.Errors.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Defaults, newCfg.Defaults) {
		changed = append(changed, "defaults")
		d := newCfg.Defaults
		lrt := -1
		if d.LockResetTimeout != nil {
			lrt = *d.LockResetTimeout
		}
		attrs = append(attrs,
			logx.Int("defaults.tries", d.Tries),
			logx.String("defaults.try_delay", d.TryDelay),
			logx.Int("defaults.lock_reset_timeout", lrt),
			logx.Bool("defaults.prevent_overlapping", d.PreventOverlapping),
		)
	}

	oS, nS := oldCfg.Storage, newCfg.Storage
	if oS.Driver != nS.Driver || oS.Path != nS.Path || oS.BusyTimeout != nS.BusyTimeout ||
		oS.MaxLaunchesPerTask != nS.MaxLaunchesPerTask || oS.DSN != nS.DSN {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.Int("storage.max_launches_per_task", nS.MaxLaunchesPerTask),
		)
	}

	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.String("trigger.spec", newCfg.Trigger.Spec),
			logx.String("trigger.timezone", newCfg.Trigger.Timezone),
		)
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.Bool("http.enabled", newCfg.HTTP.Enabled), logx.String("http.addr", newCfg.HTTP.Addr))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	tasksChanged := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(tasksChanged) > 0 || len(oldCfg.Tasks) != len(newCfg.Tasks) {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.count", len(newCfg.Tasks)),
			logx.Int("tasks.changed_count", len(tasksChanged)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, tasksChanged
}

// diffTasks compares entries by position, since the position is the task id.
func diffTasks(oldT, newT []TaskConfig) []string {
	n := max(len(oldT), len(newT))
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for i := 0; i < n; i++ {
		var o, nw *TaskConfig
		if i < len(oldT) {
			o = &oldT[i]
		}
		if i < len(newT) {
			nw = &newT[i]
		}
		if o != nil && nw != nil && reflect.DeepEqual(*o, *nw) {
			continue
		}
		label := taskLabel(i, nw)
		if nw == nil {
			label = taskLabel(i, o)
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func taskLabel(i int, t *TaskConfig) string {
	if t != nil && strings.TrimSpace(t.Name) != "" {
		return strings.TrimSpace(t.Name)
	}
	return "#" + strconv.Itoa(i)
}
