package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pewcron/internal/task/engine"
	"pewcron/internal/task/runner"
)

func newTask(t *testing.T, id int, name string) *engine.Task {
	t.Helper()
	r, err := runner.NewCommand("true", nil)
	require.NoError(t, err)
	task, err := engine.NewTask(id, r, nil, engine.Options{Name: name, Tries: 1})
	require.NoError(t, err)
	return task
}

func TestCollectorCountsObserverEvents(t *testing.T) {
	t.Parallel()
	c := NewCollector(prometheus.NewRegistry())
	task := newTask(t, 3, "backup")

	c.Decided(task, engine.DecisionSkip)
	c.Decided(task, engine.DecisionLaunch)
	c.Attempted(task, errors.New("boom"), time.Second)
	c.Attempted(task, nil, 2*time.Second)
	c.Finished(task, nil)
	c.Finished(task, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("3", "backup", engine.DecisionSkip.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("3", "backup", engine.DecisionLaunch.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("3", "backup", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("3", "backup", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.launchFailures.WithLabelValues("3", "backup")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.attemptDuration))
}

func TestCollectorObserveRun(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	finished := time.Unix(1_700_000_000, 0)
	c.ObserveRun(time.Second, 2, finished)
	c.ObserveRun(time.Second, 0, finished.Add(time.Minute))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatchErrors))
	assert.Equal(t, float64(finished.Add(time.Minute).Unix()), testutil.ToFloat64(c.lastRun))
}

func TestHandlerServesTextFormat(t *testing.T) {
	t.Parallel()
	c := NewCollector(prometheus.NewRegistry())
	c.Decided(newTask(t, 0, "report"), engine.DecisionLaunch)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `pewcron_decisions_total{decision="`+engine.DecisionLaunch.String()+`",task="report",task_id="0"} 1`), body)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})
}
