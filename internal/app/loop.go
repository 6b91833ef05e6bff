package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pewcron/internal/api"
	"pewcron/internal/config"
	"pewcron/internal/runtime/supervisor"
	"pewcron/internal/task/scheduler"
	logx "pewcron/pkg/logx"
	"pewcron/pkg/systemd"
)

const stopTimeout = 30 * time.Second

// Loop runs invocations on the configured trigger until ctx is done. The
// config file is watched; a valid change rebuilds the registry between ticks.
func (a *App) Loop(ctx context.Context) error {
	cfg := a.Config()
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	notifier := systemd.New()

	trig, err := a.newTrigger(cfg)
	if err != nil {
		return err
	}
	trig.Start(sup.Context())

	a.cfgm.SetValidator(a.checkBuild)
	updates := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(updates)
	sup.GoRestart("config.watch", a.cfgm.Watch, 250*time.Millisecond, 30*time.Second)
	sup.Go("config.apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-updates:
				prev := a.Config()
				if err := a.Reload(next); err != nil {
					a.log.Warn("config reload failed", logx.Err(err))
					continue
				}
				if prev.Trigger != next.Trigger {
					nt, err := a.newTrigger(next)
					if err != nil {
						a.log.Warn("trigger unchanged", logx.Err(err))
						continue
					}
					stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
					trig.Stop(stopCtx)
					cancel()
					trig = nt
					trig.Start(ctx)
				}
				if prev.HTTP != next.HTTP || prev.Metrics != next.Metrics {
					a.log.Warn("http and metrics settings changed; restart to apply them")
				}
				_, _ = notifier.Status(fmt.Sprintf("%d tasks", len(a.Service().Tasks())))
			}
		}
	})

	if cfg.HTTP.Enabled {
		a.serveHTTP(sup, cfg.HTTP.Addr)
	}
	sup.Go("systemd.watchdog", notifier.Watchdog)

	if sent, err := notifier.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	_, _ = notifier.Status(fmt.Sprintf("%d tasks", len(a.Service().Tasks())))
	a.log.Info("loop started",
		logx.String("trigger", cfg.Trigger.Spec),
		logx.Int("tasks", len(a.Service().Tasks())),
		logx.Bool("http", cfg.HTTP.Enabled),
	)

	<-sup.Context().Done()
	_, _ = notifier.Stopping()
	a.log.Info("loop stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	// trig is owned by config.apply until the supervisor is stopped.
	err = sup.Stop(stopCtx)
	trig.Stop(stopCtx)
	return err
}

func (a *App) newTrigger(cfg *config.Config) (*scheduler.Trigger, error) {
	loc, err := config.ParseLocationField("trigger.timezone", cfg.Trigger.Timezone)
	if err != nil {
		return nil, err
	}
	return scheduler.NewTrigger(cfg.Trigger.Spec, loc, func(ctx context.Context) { a.RunOnce(ctx) }, a.log)
}

func (a *App) serveHTTP(sup *supervisor.Supervisor, addr string) {
	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(a, metricsHandler, a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sup.Go("http", func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		a.log.Info("http listening", logx.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}
