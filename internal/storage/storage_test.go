package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "pewcron/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backend struct {
	name string
	open func(t *testing.T, cfg Config) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T, cfg Config) Store {
			cfg.Driver = "memory"
			return mustOpen(t, cfg)
		}},
		{"file", func(t *testing.T, cfg Config) Store {
			cfg.Driver = "file"
			cfg.Path = filepath.Join(t.TempDir(), "history.db")
			return mustOpen(t, cfg)
		}},
		{"sqlite", func(t *testing.T, cfg Config) Store {
			cfg.Driver = "sqlite"
			cfg.Path = filepath.Join(t.TempDir(), "history.sqlite")
			return mustOpen(t, cfg)
		}},
	}
}

func mustOpen(t *testing.T, cfg Config) Store {
	t.Helper()
	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func forEachBackend(t *testing.T, fn func(t *testing.T, st Store, clock *fakeClock)) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			fn(t, b.open(t, Config{Clock: clock.Now}), clock)
		})
	}
}

func TestLastLaunchIdentityLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store, clock *fakeClock) {
		ctx := context.Background()

		last, err := st.LastLaunch(ctx, 1, "command", "backup", "")
		require.NoError(t, err)
		assert.Nil(t, last, "unknown task")

		last, err = st.LastLaunch(ctx, 1, "command", "backup", "")
		require.NoError(t, err)
		assert.Nil(t, last, "known task without launches")

		id, err := st.StartNewLaunch(ctx, 1)
		require.NoError(t, err)
		require.NotZero(t, id)

		last, err = st.LastLaunch(ctx, 1, "command", "backup", "")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, id, last.ID)
		assert.Equal(t, 1, last.TaskID)
		assert.True(t, last.IsWorking)
		assert.Nil(t, last.EndTime)
		assert.True(t, last.StartTime.Equal(clock.Now()))

		last, err = st.LastLaunch(ctx, 1, "command", "backup", "nightly")
		require.NoError(t, err)
		assert.Nil(t, last, "changed description resets history view")

		last, err = st.LastLaunch(ctx, 1, "command", "backup", "nightly")
		require.NoError(t, err)
		require.NotNil(t, last, "identity stored after change")

		tasks, err := st.Tasks(ctx)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, "nightly", tasks[0].Description)
	})
}

func TestLaunchOutcomes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := st.LastLaunch(ctx, 7, "func", "f", "")
		require.NoError(t, err)

		id, err := st.StartNewLaunch(ctx, 7)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		n, err := st.CompleteLaunchUnsuccessfully(ctx, id, "boom")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		clock.Advance(time.Minute)
		same, err := st.RestartExistingLaunch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, same)

		last, err := st.LastLaunch(ctx, 7, "func", "f", "")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, last.IsWorking)
		assert.Nil(t, last.EndTime)
		assert.True(t, last.StartTime.Equal(clock.Now()), "restart moves start time")
		assert.Equal(t, 1, last.ErrorCount)

		n, err = st.CompleteLaunchUnsuccessfully(ctx, id, "boom again")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = st.RestartExistingLaunch(ctx, id)
		require.NoError(t, err)
		clock.Advance(90 * time.Second)
		require.NoError(t, st.CompleteLaunchSuccessfully(ctx, id))

		last, err = st.LastLaunch(ctx, 7, "func", "f", "")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.False(t, last.IsWorking)
		assert.Zero(t, last.ErrorCount)
		assert.Empty(t, last.ErrorText)
		require.NotNil(t, last.EndTime)
		assert.Equal(t, 90*time.Second, last.Runtime(clock.Now()))
	})
}

func TestResetLock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := st.LastLaunch(ctx, 2, "command", "sleepy", "")
		require.NoError(t, err)
		id, err := st.StartNewLaunch(ctx, 2)
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)
		require.NoError(t, st.ResetLock(ctx, id))

		launches, err := st.Launches(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, launches, 1)
		l := launches[0]
		assert.False(t, l.IsWorking)
		assert.Equal(t, 1, l.ErrorCount)
		assert.Equal(t, ResetLockText, l.ErrorText)
		require.NotNil(t, l.EndTime)
		assert.True(t, l.EndTime.Equal(clock.Now()))
	})
}

func TestUnknownLaunch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store, _ *fakeClock) {
		ctx := context.Background()
		_, err := st.RestartExistingLaunch(ctx, 999)
		require.ErrorIs(t, err, ErrLaunchNotFound)
		require.ErrorIs(t, st.CompleteLaunchSuccessfully(ctx, 999), ErrLaunchNotFound)
		require.ErrorIs(t, st.ResetLock(ctx, 999), ErrLaunchNotFound)
	})
}

func TestLastLaunchOrdersByStartThenID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store, clock *fakeClock) {
		ctx := context.Background()
		_, err := st.LastLaunch(ctx, 3, "command", "c", "")
		require.NoError(t, err)

		first, err := st.StartNewLaunch(ctx, 3)
		require.NoError(t, err)
		second, err := st.StartNewLaunch(ctx, 3)
		require.NoError(t, err)
		assert.Greater(t, second, first)

		last, err := st.LastLaunch(ctx, 3, "command", "c", "")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, second, last.ID, "same start time falls back to id")

		clock.Advance(time.Minute)
		_, err = st.RestartExistingLaunch(ctx, first)
		require.NoError(t, err)
		last, err = st.LastLaunch(ctx, 3, "command", "c", "")
		require.NoError(t, err)
		assert.Equal(t, first, last.ID, "restart makes the launch newest")

		launches, err := st.Launches(ctx, 3, 1)
		require.NoError(t, err)
		require.Len(t, launches, 1)
		assert.Equal(t, first, launches[0].ID)
	})
}

func TestRetention(t *testing.T) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			clock := newFakeClock()
			st := b.open(t, Config{Clock: clock.Now, MaxLaunchesPerTask: 2})
			ctx := context.Background()
			_, err := st.LastLaunch(ctx, 1, "command", "c", "")
			require.NoError(t, err)

			var ids []int64
			for i := 0; i < 4; i++ {
				clock.Advance(time.Minute)
				id, err := st.StartNewLaunch(ctx, 1)
				require.NoError(t, err)
				ids = append(ids, id)
			}
			launches, err := st.Launches(ctx, 1, 0)
			require.NoError(t, err)
			require.Len(t, launches, 2)
			assert.Equal(t, ids[3], launches[0].ID)
			assert.Equal(t, ids[2], launches[1].ID)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path, Clock: clock.Now}, logx.Nop())
	require.NoError(t, err)
	_, err = st.LastLaunch(ctx, 1, "command", "c", "d")
	require.NoError(t, err)
	id, err := st.StartNewLaunch(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path, Clock: clock.Now}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	last, err := st.LastLaunch(ctx, 1, "command", "c", "d")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, id, last.ID)
	assert.True(t, last.IsWorking, "lock state persisted")

	next, err := st.StartNewLaunch(ctx, 1)
	require.NoError(t, err)
	assert.Greater(t, next, id, "ids keep increasing after reopen")
}

func TestFileStoreCompactsJournal(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path, Clock: clock.Now}, logx.Nop())
	require.NoError(t, err)
	fs := st.(*fileStore)
	fs.compactEvery = 3

	_, err = st.LastLaunch(ctx, 1, "command", "c", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = st.StartNewLaunch(ctx, 1)
		require.NoError(t, err)
	}
	require.FileExists(t, filepath.Join(filepath.Dir(path), "history.snapshot.json"))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path, Clock: clock.Now}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	launches, err := st.Launches(ctx, 1, 0)
	require.NoError(t, err)
	assert.Len(t, launches, 5)
}

func TestClosedMemoryStore(t *testing.T) {
	t.Parallel()
	st := NewMemory(Config{})
	require.NoError(t, st.Close())
	_, err := st.LastLaunch(context.Background(), 1, "command", "c", "")
	require.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "mysql"}, logx.Nop())
	require.Error(t, err)
}
