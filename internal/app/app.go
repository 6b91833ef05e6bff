// Package app wires configuration, storage, the engine and the scheduler
// into the commands the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"pewcron/internal/config"
	"pewcron/internal/metrics"
	"pewcron/internal/storage"
	"pewcron/internal/task/engine"
	"pewcron/internal/task/scheduler"
	logx "pewcron/pkg/logx"
)

type App struct {
	cfgm   *config.ConfigManager
	logSvc *logx.Service
	log    logx.Logger
	stdout io.Writer
	clock  func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	store   storage.Store
	metrics *metrics.Collector

	// mu serializes invocations with registry swaps.
	mu   sync.Mutex
	cfg  *config.Config
	svc  atomic.Pointer[scheduler.Service]
	last atomic.Pointer[scheduler.RunReport]
}

type Option func(*App)

// WithLogger bypasses the logging section of the config.
func WithLogger(log logx.Logger) Option { return func(a *App) { a.log = log } }

func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// WithClock sets the clock used by the engine and the storage backend.
func WithClock(now func() time.Time) Option { return func(a *App) { a.clock = now } }

// WithSleeper replaces the retry delay wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *App) { a.sleep = sleep }
}

// New loads the config at path, opens storage and registers every task.
func New(path string, opts ...Option) (*App, error) {
	a := &App{cfgm: config.NewConfigManager(path), stdout: os.Stdout}
	for _, o := range opts {
		o(a)
	}

	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	a.cfg = cfg

	if a.log.IsZero() {
		a.logSvc, a.log = logx.New(loggingConfig(cfg.Logging))
	}
	a.cfgm.SetLogger(a.log)

	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewCollector(prometheus.NewRegistry())
	}

	scfg, err := storageConfig(cfg.Storage, a.clock)
	if err != nil {
		a.closeLogs()
		return nil, err
	}
	if a.store, err = storage.Open(scfg, a.log); err != nil {
		a.closeLogs()
		return nil, err
	}

	svc, err := a.build(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.svc.Store(svc)
	return a, nil
}

func (a *App) build(cfg *config.Config) (*scheduler.Service, error) {
	opts := []engine.Option{engine.WithTemplate(messageTemplate(cfg.Defaults)), engine.WithClock(a.clock), engine.WithSleeper(a.sleep)}
	if a.metrics != nil {
		opts = append(opts, engine.WithObserver(a.metrics))
	}
	eng := engine.New(a.store, a.log, opts...)
	return buildService(cfg, eng, a.log, a.stdout)
}

func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Service() *scheduler.Service { return a.svc.Load() }

func (a *App) Settings() []scheduler.Settings { return a.svc.Load().Settings() }

func (a *App) History() storage.HistoryReader { return a.store }

func (a *App) LastRun() (scheduler.RunReport, bool) {
	r := a.last.Load()
	if r == nil {
		return scheduler.RunReport{}, false
	}
	return *r, true
}

// Metrics is nil unless metrics are enabled.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Validate reports tasks that can never run.
func (a *App) Validate() error { return a.svc.Load().Validate() }

// RunOnce performs one invocation. Every log line of the invocation carries
// the same run_id.
func (a *App) RunOnce(ctx context.Context) scheduler.RunReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	runID := uuid.NewString()
	svc := a.svc.Load().WithLogger(a.log.With(logx.String("run_id", runID)))
	report := svc.Run(ctx)
	a.last.Store(&report)
	if a.metrics != nil {
		a.metrics.ObserveRun(report.Duration, report.Errors, report.Started.Add(report.Duration))
	}
	return report
}

// Reload swaps in a registry built from cfg. A storage section change needs
// a restart and is only logged.
func (a *App) Reload(cfg *config.Config) error {
	svc, err := a.build(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.svc.Store(svc)
	a.mu.Unlock()

	changed, attrs, tasks := config.SummarizeConfigChange(old, cfg)
	if a.logSvc != nil {
		a.logSvc.Apply(loggingConfig(cfg.Logging))
	}
	for _, section := range changed {
		if section == "storage" {
			a.log.Warn("storage settings changed; restart to apply them")
		}
	}
	a.log.Info("registry rebuilt", append(attrs,
		logx.Any("sections", changed),
		logx.Any("tasks_changed", tasks),
		logx.Int("tasks", len(svc.Tasks())),
	)...)
	return nil
}

// checkBuild is the config watcher's validator: a reload is accepted only if
// every task builds.
func (a *App) checkBuild(_ context.Context, cfg *config.Config) error {
	_, err := a.build(cfg)
	return err
}

func (a *App) closeLogs() {
	if a.logSvc != nil {
		_ = a.logSvc.Close()
	}
}

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if a.logSvc != nil {
		if err := a.logSvc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logs: %w", err))
		}
	}
	return errors.Join(errs...)
}
